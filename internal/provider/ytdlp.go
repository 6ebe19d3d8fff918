package provider

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/zerocas99/zenload/internal/config"
	"github.com/zerocas99/zenload/internal/media"
	"github.com/zerocas99/zenload/internal/util"
)

var percentRe = regexp.MustCompile(`([\d.]+)%`)
var ytdlpErrorRe = regexp.MustCompile(`(?i)ERROR[:\s]+(.+?)(?:\n|$)`)

// Ytdlp shells out to yt-dlp. Slowest provider in every chain, but the
// broadest coverage, so it always sits last.
type Ytdlp struct{}

func NewYtdlp() *Ytdlp { return &Ytdlp{} }

func (y *Ytdlp) Name() string { return "yt-dlp" }

// Resolve satisfies Provider but yt-dlp only materializes files.
func (y *Ytdlp) Resolve(ctx context.Context, url string, opts Options) (*Result, error) {
	return nil, Failf(FailUnsupported, "yt-dlp has no resolve-only mode")
}

func (y *Ytdlp) formatArgs(opts Options) []string {
	if opts.AudioOnly {
		return []string{"-f", "bestaudio/best", "-x", "--audio-format", "mp3"}
	}
	if opts.FormatID != "" && opts.FormatID != "best" {
		return []string{"-f", opts.FormatID, "--merge-output-format", "mp4"}
	}
	if h, err := strconv.Atoi(opts.Quality); err == nil && h > 0 {
		return []string{
			"-f", fmt.Sprintf("bv[vcodec^=avc][height<=%d]+ba[acodec^=mp4a]/bv[height<=%d]+ba/b", h, h),
			"--merge-output-format", "mp4",
		}
	}
	return []string{"-f", "bv[vcodec^=avc]+ba[acodec^=mp4a]/bv+ba/b", "--merge-output-format", "mp4"}
}

// Fetch downloads by subprocess. Cancellation kills the process via the
// command context; partial output is removed before returning.
func (y *Ytdlp) Fetch(ctx context.Context, url string, opts Options, onProgress func(percent float64)) (*media.Downloaded, error) {
	prefix := fmt.Sprintf("%s-%s", firstNonEmpty(opts.Platform, "ytdlp"), uuid.NewString())
	outDir := config.DownloadsDir()
	tempTemplate := filepath.Join(outDir, prefix+".%(ext)s")

	args := append([]string{}, util.GetProxyArgs()...)
	args = append(args,
		"--no-playlist",
		"--newline",
		"--progress-template", "%(progress._percent_str)s",
		"-o", tempTemplate,
	)
	args = append(args, y.formatArgs(opts)...)
	args = append(args, url)

	cmd := exec.CommandContext(ctx, "yt-dlp", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, Failf(FailTransient, "failed to start yt-dlp: %v", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, Failf(FailTransient, "failed to start yt-dlp: %v", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, Failf(FailTransient, "failed to start yt-dlp: %v", err)
	}

	var stderrOutput strings.Builder
	var lastProgress float64
	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(2)

	report := func(line string) {
		m := percentRe.FindStringSubmatch(line)
		if len(m) < 2 {
			return
		}
		p, _ := strconv.ParseFloat(m[1], 64)
		mu.Lock()
		shouldReport := p > 0 && (p > lastProgress+2 || p >= 100)
		if shouldReport {
			lastProgress = p
		}
		mu.Unlock()
		if shouldReport && onProgress != nil {
			onProgress(p)
		}
	}

	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			report(scanner.Text())
		}
	}()

	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stderr)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			stderrOutput.WriteString(line + "\n")
			if strings.Contains(line, "[download]") && strings.Contains(line, "%") {
				report(line)
			}
		}
	}()

	wg.Wait()
	err = cmd.Wait()

	if ctx.Err() != nil {
		y.removeOutputs(outDir, prefix)
		return nil, ctx.Err()
	}

	if err != nil {
		y.removeOutputs(outDir, prefix)
		errMsg := "download failed"
		if m := ytdlpErrorRe.FindStringSubmatch(stderrOutput.String()); len(m) > 1 {
			errMsg = strings.TrimSpace(m[1])
		}
		return nil, Failf(ClassifyMessage(errMsg), "%s", errMsg)
	}

	path, found := y.findOutput(outDir, prefix)
	if !found {
		return nil, Failf(FailTransient, "downloaded file not found")
	}

	kind := media.KindVideo
	if opts.AudioOnly {
		kind = media.KindAudio
	} else if k := media.KindForPath(path); k != media.KindVideo {
		kind = k
	}

	return &media.Downloaded{LocalPath: path, Kind: kind}, nil
}

func (y *Ytdlp) findOutput(dir, prefix string) (string, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		if strings.HasSuffix(name, ".part") || strings.Contains(name, ".part-Frag") || strings.HasSuffix(name, ".ytdl") {
			continue
		}
		return filepath.Join(dir, name), true
	}
	return "", false
}

func (y *Ytdlp) removeOutputs(dir, prefix string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), prefix) {
			os.Remove(filepath.Join(dir, e.Name()))
		}
	}
}

// ListFormats asks yt-dlp for the selectable format heights of a URL.
func (y *Ytdlp) ListFormats(ctx context.Context, url string) ([]media.FormatDescriptor, error) {
	args := append([]string{}, util.GetProxyArgs()...)
	args = append(args, "--no-playlist", "-J", url)

	cmd := exec.CommandContext(ctx, "yt-dlp", args...)
	out, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			if m := ytdlpErrorRe.FindStringSubmatch(string(exitErr.Stderr)); len(m) > 1 {
				return nil, Failf(ClassifyMessage(m[1]), "%s", strings.TrimSpace(m[1]))
			}
		}
		return nil, Failf(FailTransient, "format probe failed: %v", err)
	}

	var info struct {
		Formats []struct {
			FormatID string `json:"format_id"`
			Height   int    `json:"height"`
			Ext      string `json:"ext"`
		} `json:"formats"`
	}
	if err := json.Unmarshal(out, &info); err != nil {
		return nil, Failf(FailTransient, "failed to parse format info")
	}

	seen := make(map[int]bool)
	var formats []media.FormatDescriptor
	for i := len(info.Formats) - 1; i >= 0; i-- {
		f := info.Formats[i]
		if f.Height == 0 || seen[f.Height] {
			continue
		}
		seen[f.Height] = true
		ext := f.Ext
		if ext == "" {
			ext = "mp4"
		}
		formats = append(formats, media.FormatDescriptor{
			ID:      f.FormatID,
			Quality: fmt.Sprintf("%dp", f.Height),
			Ext:     ext,
		})
	}
	return formats, nil
}
