package lockfile

import (
	"os"
	"path/filepath"

	"github.com/npmgo/npmgo/internal/manifest"
)

// Load reads whichever lockfile is present under dir, per the
// detection order spec.md §4.7 defines, and returns its canonical
// form plus the filename it was read from. root is only required for
// yarn.lock (it seeds the hoisting pass); it may be nil otherwise.
func Load(dir string, root *manifest.Manifest) (*Lockfile, string, error) {
	for _, name := range DetectionOrder {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, "", &LockfileError{Path: path, Err: err}
		}
		if name == "yarn.lock" {
			lf, err := ParseYarnBerry(data, root)
			if err != nil {
				return nil, name, err
			}
			return lf, name, nil
		}
		lf, err := ParseNPM(data)
		if err != nil {
			return nil, name, err
		}
		return lf, name, nil
	}
	return nil, "", nil
}

// OutputFilename returns the lockfile filename Save should write to,
// preferring the format the project was already using.
func OutputFilename(sourceFilename string) string {
	if sourceFilename == "" {
		return "package-lock.json"
	}
	return sourceFilename
}

// Save serializes lf to dir/filename in whichever format filename
// implies (yarn.lock vs the npm v1/v2/v3 schemas via lf.SourceFormat).
func Save(dir, filename string, lf *Lockfile) error {
	var data []byte
	var err error
	if filename == "yarn.lock" {
		data = SerializeYarnBerry(lf)
	} else {
		switch lf.SourceFormat {
		case FormatNPMv1:
			data, err = SerializeV1(lf)
		case FormatNPMv2:
			data, err = SerializeV2(lf)
		default:
			data, err = SerializeV3(lf)
		}
	}
	if err != nil {
		return err
	}
	path := filepath.Join(dir, filename)
	return os.WriteFile(path, data, 0o644)
}
