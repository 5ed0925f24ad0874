package review

import (
	"path/filepath"
	"strings"
)

var languageByExt = map[string]string{
	".py":    "Python",
	".js":    "JavaScript",
	".jsx":   "JavaScript",
	".ts":    "TypeScript",
	".tsx":   "TypeScript",
	".java":  "Java",
	".cpp":   "C++",
	".cc":    "C++",
	".c":     "C",
	".h":     "C",
	".cs":    "C#",
	".go":    "Go",
	".rs":    "Rust",
	".php":   "PHP",
	".rb":    "Ruby",
	".swift": "Swift",
	".kt":    "Kotlin",
	".scala": "Scala",
	".sh":    "Shell",
	".ps1":   "PowerShell",
	".r":     "R",
	".m":     "MATLAB",
	".pl":    "Perl",
	".lua":   "Lua",
	".dart":  "Dart",
	".elm":   "Elm",
}

// DetectLanguage names the programming language of path from its
// extension, or "Unknown".
func DetectLanguage(path string) string {
	if lang, ok := languageByExt[strings.ToLower(filepath.Ext(path))]; ok {
		return lang
	}
	return "Unknown"
}

// isSourceFile reports whether path has a recognised source extension.
func isSourceFile(path string) bool {
	_, ok := languageByExt[strings.ToLower(filepath.Ext(path))]
	return ok
}
