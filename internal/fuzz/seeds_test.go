package fuzztests

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const maxSeedBytes = 64 << 10

// addTestdataSeeds adds every testdata file whose name ends in suffix.
func addTestdataSeeds(f *testing.F, suffix string) {
	root := filepath.Join("..", "..", "testdata")
	if _, err := os.Stat(root); err != nil {
		return
	}
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil || d.IsDir() || !strings.HasSuffix(path, suffix) {
			return nil
		}
		// #nosec G304 -- path comes from repository testdata walk
		src, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		f.Add(clampSeed(src))
		return nil
	})
}

func clampSeed(b []byte) []byte {
	if len(b) > maxSeedBytes {
		b = b[:maxSeedBytes]
	}
	return append([]byte(nil), b...)
}

func clampInput(b []byte) []byte {
	if len(b) > maxFuzzInput {
		b = b[:maxFuzzInput]
	}
	return append([]byte(nil), b...)
}

var mapSeeds = []string{
	``,
	`{}`,
	`{"version":1,"file":"main.rs","sources":["main.nu"],"mappings":[]}`,
	`{"version":1,"mappings":[{"nu_line":3,"nu_column":5,"rs_line":12,"rs_column":9,"name":"x"}]}`,
	`{"mappings":[{"nuLine":1,"nuColumn":1,"rsLine":4,"rsColumn":1}]}`,
	`{"mappings":[{"nu_line":-4,"rs_line":null},{},7]}`,
	`{"mappings":"not a list"}`,
	`[1,2,3]`,
}

var cargoSeeds = []string{
	``,
	"not json\n",
	`{"reason":"compiler-artifact","executable":"/tmp/t/target/debug/demo"}`,
	`{"reason":"compiler-message","message":{"message":"unused variable","code":null,"level":"warning","spans":[{"file_name":"src/main.rs","line_start":5,"line_end":5,"column_start":9,"column_end":10,"is_primary":true}],"children":[]}}`,
	`{"reason":"compiler-message","message":{"message":"mismatched types","code":{"code":"E0308"},"level":"error","spans":[],"children":[{"message":"expected i32","level":"note","spans":[]}]}}`,
	`{"reason":"build-finished","success":false}`,
}
