package plot

import "codeberg.org/mutker/pmtablemon/internal/errors"

const (
	ErrNothingToRender = errors.ErrorCode("plot_nothing_to_render")
	ErrRender          = errors.ErrRenderOutput
)

func init() {
	errors.RegisterMessages(map[errors.ErrorCode]string{
		ErrNothingToRender: "Nothing to render",
	})
}
