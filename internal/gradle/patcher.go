package gradle

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/qualitool/buildtools/internal/buildnumber"
	"github.com/qualitool/buildtools/internal/manifest"
)

// IOError reports a failure to read or write the descriptor.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// File access, replaced in tests.
var (
	writeFile = os.WriteFile
	openFile  = os.Open
)

// Patcher applies Patch to a descriptor file using the version from a manifest.
type Patcher struct {
	// Now supplies the clock for the build number. Defaults to time.Now.
	Now func() time.Time
	// Out receives the operator report. Defaults to os.Stdout.
	Out io.Writer
	// DryRun computes and reports the patch without writing the descriptor.
	DryRun bool
}

// Report describes a completed run.
type Report struct {
	VersionName string
	VersionCode int64
	Result      Result
	Changed     bool
	// Verified holds the trimmed versionCode/versionName lines read back after
	// the write. It is nil when the read-back failed.
	Verified []string
}

// Run patches descriptorPath with the version found in manifestPath. The
// descriptor is rewritten in place with its original permissions; nothing is
// written when the manifest or descriptor cannot be read. The read-back that
// follows a successful write is best-effort.
func (p *Patcher) Run(manifestPath, descriptorPath string) (Report, error) {
	out := p.Out
	if out == nil {
		out = os.Stdout
	}
	now := p.Now
	if now == nil {
		now = time.Now
	}

	m, err := manifest.Load(manifestPath)
	if err != nil {
		return Report{}, err
	}
	rep := Report{VersionName: m.Version, VersionCode: buildnumber.From(now())}
	name := filepath.Base(descriptorPath)

	fmt.Fprintf(out, "Configuring %s:\n", name)
	fmt.Fprintf(out, "   versionName: %s\n", rep.VersionName)
	fmt.Fprintf(out, "   versionCode: %d\n", rep.VersionCode)

	info, err := os.Stat(descriptorPath)
	if err != nil {
		return rep, &IOError{Op: "stat", Path: descriptorPath, Err: err}
	}
	original, err := os.ReadFile(descriptorPath)
	if err != nil {
		return rep, &IOError{Op: "read", Path: descriptorPath, Err: err}
	}

	patched, res := Patch(string(original), rep.VersionName, rep.VersionCode)
	rep.Result = res
	rep.Changed = patched != string(original)
	logResult(descriptorPath, res)

	if p.DryRun {
		fmt.Fprintf(out, "Dry run: %s not written (changed=%t)\n", name, rep.Changed)
		rep.Verified = versionLines(strings.NewReader(patched))
	} else {
		if err := writeFile(descriptorPath, []byte(patched), info.Mode().Perm()); err != nil {
			return rep, &IOError{Op: "write", Path: descriptorPath, Err: err}
		}
		fmt.Fprintf(out, "%s configured successfully\n", name)
		rep.Verified = readBack(descriptorPath)
	}

	if rep.Verified != nil {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Verification:")
		for _, line := range rep.Verified {
			fmt.Fprintf(out, "   %s\n", line)
		}
	}
	return rep, nil
}

func logResult(path string, res Result) {
	log.Debug().
		Str("descriptor", path).
		Int("version_code_replacements", res.VersionCodeReplacements).
		Int("version_name_replacements", res.VersionNameReplacements).
		Str("signing_config", res.SigningConfig.String()).
		Str("signing_reference", res.SigningReference.String()).
		Msg("patched descriptor")
	if res.VersionCodeReplacements == 0 {
		log.Warn().Str("descriptor", path).Msg("no versionCode assignment found")
	}
	if res.VersionNameReplacements == 0 {
		log.Warn().Str("descriptor", path).Msg("no versionName assignment found")
	}
	if res.VersionCodeReplacements > 1 || res.VersionNameReplacements > 1 {
		log.Warn().Str("descriptor", path).Msg("multiple version assignments overwritten with the same values")
	}
	if res.SigningConfig == AnchorNotFound {
		log.Warn().Str("descriptor", path).Msg("no android block; signing config not added")
	}
	if res.SigningReference == AnchorNotFound {
		log.Warn().Str("descriptor", path).Msg("no release build type; signing reference not added")
	}
}

func readBack(path string) []string {
	f, err := openFile(path)
	if err != nil {
		log.Warn().Err(err).Str("descriptor", path).Msg("verification read failed")
		return nil
	}
	defer f.Close()
	lines := versionLines(f)
	if lines == nil {
		log.Warn().Str("descriptor", path).Msg("verification read failed")
	}
	return lines
}

// versionLines returns every line of r mentioning versionCode or versionName,
// trimmed. It returns nil when r cannot be read in full.
func versionLines(r io.Reader) []string {
	lines := []string{}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if strings.Contains(line, "versionCode") || strings.Contains(line, "versionName") {
			lines = append(lines, strings.TrimSpace(line))
		}
	}
	if sc.Err() != nil {
		return nil
	}
	return lines
}
