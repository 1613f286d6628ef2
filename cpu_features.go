package qgemm

import (
	"golang.org/x/sys/cpu"
)

// CPUFeatures tracks the CPU instruction-set extensions relevant to the
// kernel families.
type CPUFeatures struct {
	HasAVX        bool
	HasAVX2       bool
	HasFMA        bool
	HasAVX512F    bool // Foundation — required by the float32 family
	HasAVX512BW   bool // Byte/Word
	HasAVX512VL   bool // Vector Length
	HasAVX512VNNI bool // Integer dot products — required by the VNNI family
}

var cpuFeatures CPUFeatures

func init() {
	detectCPUFeatures()
}

// detectCPUFeatures populates the package cpuFeatures struct
func detectCPUFeatures() {
	cpuFeatures = CPUFeatures{
		HasAVX:        cpu.X86.HasAVX,
		HasAVX2:       cpu.X86.HasAVX2,
		HasFMA:        cpu.X86.HasFMA,
		HasAVX512F:    cpu.X86.HasAVX512F,
		HasAVX512BW:   cpu.X86.HasAVX512BW,
		HasAVX512VL:   cpu.X86.HasAVX512VL,
		HasAVX512VNNI: cpu.X86.HasAVX512VNNI,
	}
}

// Features returns the detected CPU feature set.
func Features() CPUFeatures {
	return cpuFeatures
}

// CPUInfo returns a string describing available CPU features
func CPUInfo() string {
	features := []string{}

	if cpuFeatures.HasAVX {
		features = append(features, "AVX")
	}
	if cpuFeatures.HasAVX2 {
		features = append(features, "AVX2")
	}
	if cpuFeatures.HasFMA {
		features = append(features, "FMA")
	}
	if cpuFeatures.HasAVX512F {
		features = append(features, "AVX512F")
	}
	if cpuFeatures.HasAVX512BW {
		features = append(features, "AVX512BW")
	}
	if cpuFeatures.HasAVX512VL {
		features = append(features, "AVX512VL")
	}
	if cpuFeatures.HasAVX512VNNI {
		features = append(features, "AVX512VNNI")
	}

	if len(features) == 0 {
		return "No SIMD extensions detected"
	}

	result := "CPU features: "
	for i, f := range features {
		if i > 0 {
			result += ", "
		}
		result += f
	}
	return result
}
