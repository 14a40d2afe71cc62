package portable

import "golang.org/x/sys/cpu"

// hostFeatures lists the SIMD extensions a database records. The portable
// engine does not use them, but a database serialized on a host with
// extensions is rejected on hosts without them, mirroring native engines.
func hostFeatures() []string {
	var f []string
	if cpu.X86.HasAVX2 {
		f = append(f, "AVX2")
	}
	if cpu.X86.HasAVX512F {
		f = append(f, "AVX512")
	}
	if cpu.ARM64.HasASIMD {
		f = append(f, "NEON")
	}
	return f
}

func hasFeatures(host, want []string) bool {
	for _, w := range want {
		found := false
		for _, h := range host {
			if h == w {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
