package provider

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"strconv"
	"time"
)

// httpClient is shared by all provider calls. Safe for concurrent use;
// workers only ever read from it.
var httpClient = &http.Client{
	Timeout: 0, // per-call deadlines come from the caller's context
	Transport: &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
	},
}

const browserUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// HTTPClient exposes the shared pool for callers outside this package.
func HTTPClient() *http.Client {
	return httpClient
}

// FetchToFile streams a remote URL to destPath, resuming a partial .part
// file when the server supports ranges. Returns the final byte count.
func FetchToFile(ctx context.Context, url, destPath string, onProgress func(percent float64)) (int64, error) {
	partPath := destPath + ".part"

	var startByte int64
	if info, err := os.Stat(partPath); err == nil {
		startByte = info.Size()
	}

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", browserUA)
	if startByte > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", startByte))
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return 0, Failf(FailTransient, "fetch failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 && resp.StatusCode != 206 {
		if resp.StatusCode == 416 && startByte > 0 {
			os.Rename(partPath, destPath)
			return startByte, nil
		}
		return 0, Failf(classifyStatus(resp.StatusCode), "file download failed: HTTP %d", resp.StatusCode)
	}
	if resp.StatusCode == 200 {
		startByte = 0 // server ignored the range, restart
	}

	contentLength, _ := strconv.ParseInt(resp.Header.Get("Content-Length"), 10, 64)
	totalSize := startByte + contentLength

	flags := os.O_WRONLY | os.O_CREATE
	if startByte > 0 {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(partPath, flags, 0644)
	if err != nil {
		return 0, err
	}

	// The partial is this call's responsibility: an interrupted stream must
	// not leave it behind for the retention sweep.
	fail := func(err error) (int64, error) {
		f.Close()
		os.Remove(partPath)
		return 0, err
	}

	downloaded := startByte
	buf := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				return fail(werr)
			}
			downloaded += int64(n)
			if onProgress != nil && totalSize > 0 {
				onProgress(math.Min(100, float64(downloaded)/float64(totalSize)*100))
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				break
			}
			return fail(Failf(FailTransient, "read failed: %v", readErr))
		}
	}

	if err := f.Close(); err != nil {
		os.Remove(partPath)
		return 0, err
	}
	if err := os.Rename(partPath, destPath); err != nil {
		os.Remove(partPath)
		return 0, err
	}
	return downloaded, nil
}

func classifyStatus(code int) FailReason {
	switch {
	case code == 401 || code == 403:
		return FailAuthRequired
	case code == 404 || code == 410:
		return FailNotFound
	case code == 429:
		return FailRateLimited
	default:
		return FailTransient
	}
}
