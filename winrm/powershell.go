package winrm

import (
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/encoding/unicode"
)

const powershellPrefix = "powershell.exe -NoProfile -NonInteractive -EncodedCommand "

// encodeScript renders script as a powershell.exe command line. The
// -EncodedCommand argument is base64 of the UTF-16LE script text.
func encodeScript(script string) (string, error) {
	utf16, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder().String(script)
	if err != nil {
		return "", fmt.Errorf("encode script: %w", err)
	}
	return powershellPrefix + base64.StdEncoding.EncodeToString([]byte(utf16)), nil
}

// psLiteralPath is a PowerShell expression that yields path. The path
// travels base64-encoded so no quoting of its characters is needed.
func psLiteralPath(path string) string {
	return fmt.Sprintf("[System.Text.Encoding]::UTF8.GetString([System.Convert]::FromBase64String('%s'))",
		base64.StdEncoding.EncodeToString([]byte(path)))
}

var (
	clixmlError   = regexp.MustCompile(`(?s)<S S="Error">(.*?)</S>`)
	clixmlEscaped = regexp.MustCompile(`_x([0-9A-Fa-f]{4})_`)
)

// cleanErrorStream turns the CLIXML powershell.exe writes to stderr under
// -EncodedCommand into plain text. Other input is returned trimmed.
func cleanErrorStream(stderr string) string {
	body, ok := strings.CutPrefix(strings.TrimSpace(stderr), "#< CLIXML")
	if !ok {
		return strings.TrimSpace(stderr)
	}

	var b strings.Builder
	for _, m := range clixmlError.FindAllStringSubmatch(body, -1) {
		b.WriteString(m[1])
	}
	text := clixmlEscaped.ReplaceAllStringFunc(b.String(), func(s string) string {
		var r rune
		if _, err := fmt.Sscanf(s[2:6], "%04x", &r); err != nil {
			return s
		}
		return string(r)
	})
	text = strings.NewReplacer("&lt;", "<", "&gt;", ">", "&quot;", `"`, "&apos;", "'", "&amp;", "&").Replace(text)
	return strings.TrimSpace(text)
}
