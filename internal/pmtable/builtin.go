package pmtable

// Vermeer (Ryzen 5000 desktop). Byte offsets.
func init() {
	register(&Schema{
		Version: "0x380905",
		Metrics: []MetricSpec{
			ScalarAt("cpu_temp", 0x14),
			ScalarAt("socket_power", 0x48),
			ScalarAt("cpu_power", 0x4C),
			ScalarAt("soc_power", 0x5C),
			ArrayAt("core_power", 0x194, 16, ActiveSum("total_core_power")),
			ArrayAt("core_freq_eff", 0x2CC, 16,
				ActiveMean("avg_core_freq"),
				ActiveMax("peak_core_freq")),
		},
	})
}

// 0x400005 tables are documented by float index; offsets below are index*4.
func init() {
	const cores = 8

	f := func(index int) int { return index * FloatSize }

	register(&Schema{
		Version: "0x400005",
		Size:    0x1000,
		Metrics: []MetricSpec{
			ScalarAt("stapm_limit", f(0)),
			ScalarAt("stapm_value", f(1)),
			ScalarAt("ppt_limit_fast", f(2)),
			ScalarAt("ppt_value_fast", f(3)),
			ScalarAt("ppt_limit", f(4)),
			ScalarAt("ppt_value", f(5)),
			ScalarAt("ppt_limit_apu", f(6)),
			ScalarAt("ppt_value_apu", f(7)),
			ScalarAt("tdc_limit", f(8)),
			ScalarAt("tdc_value", f(9)),
			ScalarAt("tdc_limit_soc", f(10)),
			ScalarAt("tdc_value_soc", f(11)),
			ScalarAt("edc_limit", f(12)),
			ScalarAt("edc_value", f(13)),
			ScalarAt("thm_limit", f(16)),
			ScalarAt("thm_value", f(17)),
			ScalarAt("fit_limit", f(26)),
			ScalarAt("fit_value", f(27)),
			ScalarAt("vid_limit", f(28)),
			ScalarAt("vid_value", f(29)),
			ScalarAt("vddcr_cpu_power", f(34)),
			ScalarAt("vddcr_soc_power", f(35)),
			ScalarAt("socket_power", f(38)),
			ArrayAt("core_power", f(200), cores, ActiveSum("total_core_power")),
			ArrayAt("core_voltage", f(208), cores),
			ArrayAt("core_temp", f(216), cores),
			ArrayAt("core_freq", f(240), cores),
			ArrayAt("core_freq_eff", f(248), cores,
				ActiveMean("avg_core_freq"),
				ActiveMax("peak_core_freq")),
			ArrayAt("core_c0", f(256), cores),
			ArrayAt("core_cc1", f(264), cores),
			ArrayAt("core_cc6", f(272), cores),
			ScalarAt("gfx_voltage", f(399)),
			ScalarAt("soc_temp", f(400)),
			ScalarAt("gfx_freq", f(402)),
			ScalarAt("gfx_busy", f(404)),
			ScalarAt("fclk_freq", f(409)),
			ScalarAt("uclk_freq", f(410)),
			ScalarAt("memclk_freq", f(411)),
			ScalarAt("fclk_freq_eff", f(419)),
			ScalarAt("peak_temp", f(572)),
			ScalarAt("peak_voltage", f(573)),
			ScalarAt("avg_core_count", f(574)),
			ScalarAt("max_soc_voltage", f(575)),
			ScalarAt("prochot", f(578)),
		},
	})
}
