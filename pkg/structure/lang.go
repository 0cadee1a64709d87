package structure

import (
	"path/filepath"
	"strings"
)

// Language identifies a programming language for structural extraction.
type Language string

// Supported languages.
const (
	LangGo         Language = "go"
	LangPython     Language = "python"
	LangTypeScript Language = "typescript"
	LangTSX        Language = "tsx"
	LangJavaScript Language = "javascript"
	LangRust       Language = "rust"
	LangJava       Language = "java"
)

var extToLang = map[string]Language{ //nolint:gochecknoglobals // static config
	".go":   LangGo,
	".py":   LangPython,
	".ts":   LangTypeScript,
	".mts":  LangTypeScript,
	".cts":  LangTypeScript,
	".tsx":  LangTSX,
	".js":   LangJavaScript,
	".jsx":  LangJavaScript,
	".mjs":  LangJavaScript,
	".cjs":  LangJavaScript,
	".rs":   LangRust,
	".java": LangJava,
}

// LangFromPath returns the language for a file path based on its extension.
func LangFromPath(filePath string) (Language, bool) {
	ext := strings.ToLower(filepath.Ext(filePath))
	lang, ok := extToLang[ext]
	return lang, ok
}

// extension returns a file extension ast-grep recognizes for lang.
func (l Language) extension() string {
	switch l {
	case LangGo:
		return ".go"
	case LangPython:
		return ".py"
	case LangTypeScript:
		return ".ts"
	case LangTSX:
		return ".tsx"
	case LangJavaScript:
		return ".js"
	case LangRust:
		return ".rs"
	case LangJava:
		return ".java"
	default:
		return ""
	}
}
