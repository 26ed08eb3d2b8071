package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var imageExts = map[string]struct{}{
	"jpg": {}, "jpeg": {}, "png": {}, "gif": {}, "bmp": {}, "tiff": {}, "webp": {},
}

// EnsureDir creates a directory if it doesn't exist
func EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0o755)
}

// GetFileExtension returns the lowercase file extension without the dot
func GetFileExtension(filename string) string {
	ext := filepath.Ext(filename)
	if len(ext) > 0 {
		return strings.ToLower(ext[1:])
	}
	return ""
}

// IsImageFile checks if a file has an image extension
func IsImageFile(filename string) bool {
	_, ok := imageExts[GetFileExtension(filename)]
	return ok
}

// BaseName returns the file name without directory and extension. URLs
// keep only their last path segment.
func BaseName(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	base := filepath.Base(strings.ReplaceAll(path, "\\", "/"))
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// GenerateOutputFilename generates an output filename based on input and parameters
func GenerateOutputFilename(inputFile, outputDir, suffix, format string) string {
	if format == "" {
		format = GetFileExtension(inputFile)
		if format == "" {
			format = "jpg"
		}
	}

	outputName := fmt.Sprintf("%s%s.%s", SanitizeFilename(BaseName(inputFile)), suffix, format)
	return filepath.Join(outputDir, outputName)
}

// ListImageFiles recursively lists all image files in a directory, sorted
func ListImageFiles(dir string) ([]string, error) {
	var files []string

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if !info.IsDir() && IsImageFile(path) {
			files = append(files, path)
		}

		return nil
	})

	sort.Strings(files)
	return files, err
}

// DirExists checks if a directory exists
func DirExists(dirname string) bool {
	info, err := os.Stat(dirname)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// SanitizeFilename removes or replaces invalid characters in filenames
func SanitizeFilename(filename string) string {
	invalid := []string{"/", "\\", ":", "*", "?", "\"", "<", ">", "|"}
	result := filename

	for _, char := range invalid {
		result = strings.ReplaceAll(result, char, "_")
	}

	// Remove leading/trailing spaces and dots
	result = strings.Trim(result, " .")

	if result == "" {
		result = "image"
	}
	return result
}

// FormatFileSize formats file size in human-readable format
func FormatFileSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}

	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}

	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}
