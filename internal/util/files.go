package util

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zerocas99/zenload/internal/config"
)

var unsafeFilenameRe = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)
var multiSpaceRe = regexp.MustCompile(`\s+`)

func tempDirs() []string {
	return []string{config.DownloadsDir(), config.ThumbsDir()}
}

// TempFilePath returns a collision-resistant path inside the downloads dir.
func TempFilePath(platform, ext string) string {
	name := fmt.Sprintf("%s-%s.%s", platform, uuid.NewString(), ext)
	return filepath.Join(config.DownloadsDir(), name)
}

// ThumbFilePath returns a collision-resistant path for transient artwork.
func ThumbFilePath(ext string) string {
	name := fmt.Sprintf("thumb-%s.%s", uuid.NewString(), ext)
	return filepath.Join(config.ThumbsDir(), name)
}

func EnsureTempDirs() {
	for _, dir := range tempDirs() {
		os.MkdirAll(dir, 0755)
	}
}

func ClearTempDirs() {
	for _, dir := range tempDirs() {
		entries, err := os.ReadDir(dir)
		if err != nil {
			os.MkdirAll(dir, 0755)
			continue
		}
		for _, e := range entries {
			os.RemoveAll(filepath.Join(dir, e.Name()))
		}
	}
	log.Println("[Files] Cleared temp directories")
}

// RemoveFile deletes a file if it exists. Safe to call twice and on "".
func RemoveFile(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Printf("[Files] Failed to remove %s: %v", filepath.Base(path), err)
	}
}

// CleanupTempFiles removes temp artifacts older than the retention window.
// Crash leftovers only; live workers delete their own files.
func CleanupTempFiles() {
	now := time.Now()
	for _, dir := range tempDirs() {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			info, err := e.Info()
			if err != nil {
				continue
			}
			if now.Sub(info.ModTime()) > config.FileRetention {
				os.RemoveAll(filepath.Join(dir, e.Name()))
				log.Printf("[Files] Cleaned up old temp: %s", e.Name())
			}
		}
	}
}

func StartCleanupInterval() {
	ticker := time.NewTicker(5 * time.Minute)
	go func() {
		for range ticker.C {
			CleanupTempFiles()
		}
	}()
}

func SanitizeFilename(filename string) string {
	s := unsafeFilenameRe.ReplaceAllString(filename, "_")
	s = multiSpaceRe.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

// ShortID trims a correlation ID for log lines.
func ShortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
