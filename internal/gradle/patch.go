// Package gradle patches an Android build.gradle descriptor with a version
// name, a build number and release signing configuration.
package gradle

import (
	"regexp"
	"strconv"
	"strings"
)

const (
	// SigningConfigMarker is present once a signingConfigs block exists.
	SigningConfigMarker = "signingConfigs {"
	// SigningReferenceMarker is present once the release build type uses the
	// release signing configuration.
	SigningReferenceMarker = "signingConfig signingConfigs.release"
)

// signingConfigBlock is inserted right after the first "android {" token.
// The keystore properties file is optional; without it the release build is
// left unsigned.
const signingConfigBlock = `
    signingConfigs {
        release {
            def keystorePropertiesFile = rootProject.file("keystore.properties")
            if (keystorePropertiesFile.exists()) {
                def keystoreProperties = new Properties()
                keystoreProperties.load(new FileInputStream(keystorePropertiesFile))
                storeFile file(keystoreProperties["storeFile"])
                storePassword keystoreProperties["storePassword"]
                keyAlias keystoreProperties["keyAlias"]
                keyPassword keystoreProperties["keyPassword"]
            }
        }
    }
`

// signingReferenceLine becomes the first line inside the release build type.
const signingReferenceLine = "\n            " + SigningReferenceMarker

var (
	versionCodeRe = regexp.MustCompile(`versionCode\s+\d+`)
	versionNameRe = regexp.MustCompile(`versionName\s+"[^"]*"`)
	androidOpenRe = regexp.MustCompile(`android\s*\{`)
	buildTypesRe  = regexp.MustCompile(`\bbuildTypes\s*\{`)
	signingOpenRe = regexp.MustCompile(`\bsigningConfigs\s*\{`)
	releaseOpenRe = regexp.MustCompile(`\brelease\s*\{`)
)

// InsertStatus describes what happened to one of the guarded insertions.
type InsertStatus int

const (
	// Inserted means the text was added by this patch.
	Inserted InsertStatus = iota
	// AlreadyPresent means the marker was found and nothing was added.
	AlreadyPresent
	// AnchorNotFound means the marker was absent but there was nowhere to
	// put the text.
	AnchorNotFound
)

func (s InsertStatus) String() string {
	switch s {
	case Inserted:
		return "inserted"
	case AlreadyPresent:
		return "already present"
	case AnchorNotFound:
		return "anchor not found"
	default:
		return "unknown"
	}
}

// Result summarizes the edits made by Patch.
type Result struct {
	VersionCodeReplacements int
	VersionNameReplacements int
	SigningConfig           InsertStatus
	SigningReference        InsertStatus
}

// Patch rewrites every versionCode and versionName assignment in content and
// adds the release signing configuration and its build type reference when
// their markers are missing. Applying Patch to its own output only updates
// the two version fields.
func Patch(content, versionName string, versionCode int64) (string, Result) {
	var res Result

	res.VersionCodeReplacements = len(versionCodeRe.FindAllStringIndex(content, -1))
	content = versionCodeRe.ReplaceAllLiteralString(content, "versionCode "+strconv.FormatInt(versionCode, 10))

	res.VersionNameReplacements = len(versionNameRe.FindAllStringIndex(content, -1))
	content = versionNameRe.ReplaceAllLiteralString(content, `versionName "`+versionName+`"`)

	content, res.SigningConfig = insertSigningConfig(content)
	content, res.SigningReference = insertSigningReference(content)
	return content, res
}

func insertSigningConfig(content string) (string, InsertStatus) {
	if strings.Contains(content, SigningConfigMarker) {
		return content, AlreadyPresent
	}
	loc := androidOpenRe.FindStringIndex(content)
	if loc == nil {
		return content, AnchorNotFound
	}
	return content[:loc[1]] + signingConfigBlock + content[loc[1]:], Inserted
}

func insertSigningReference(content string) (string, InsertStatus) {
	if strings.Contains(content, SigningReferenceMarker) {
		return content, AlreadyPresent
	}
	at := releaseBuildTypeOpen(content)
	if at < 0 {
		return content, AnchorNotFound
	}
	return content[:at] + signingReferenceLine + content[at:], Inserted
}

// releaseBuildTypeOpen returns the offset just past the "release {" token of
// the release build type, or -1. The release block inside buildTypes wins;
// without a buildTypes block the first release block that is not part of
// signingConfigs is used.
func releaseBuildTypeOpen(content string) int {
	if loc := buildTypesRe.FindStringIndex(content); loc != nil {
		end := blockEnd(content, loc[1]-1)
		if rel := releaseOpenRe.FindStringIndex(content[loc[1]:end]); rel != nil {
			return loc[1] + rel[1]
		}
	}

	var skip [][2]int
	for _, loc := range signingOpenRe.FindAllStringIndex(content, -1) {
		skip = append(skip, [2]int{loc[0], blockEnd(content, loc[1]-1)})
	}
next:
	for _, loc := range releaseOpenRe.FindAllStringIndex(content, -1) {
		for _, s := range skip {
			if loc[0] >= s[0] && loc[0] < s[1] {
				continue next
			}
		}
		return loc[1]
	}
	return -1
}

// blockEnd returns the offset just past the brace that closes the block
// opened at content[open], or len(content) when the braces are unbalanced.
// Braces inside strings and comments are counted as well.
func blockEnd(content string, open int) int {
	depth := 0
	for i := open; i < len(content); i++ {
		switch content[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return len(content)
}
