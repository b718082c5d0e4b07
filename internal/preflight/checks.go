package preflight

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"verdandi/internal/archive"
	"verdandi/internal/config"
	"verdandi/internal/stage"
	"verdandi/internal/store"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckFreeSpace verifies the filesystem holding path has at least minBytes available.
func CheckFreeSpace(name, path string, minBytes uint64) Result {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: statfs: %v)", path, err)}
	}
	free := stat.Bavail * uint64(stat.Bsize)
	detail := fmt.Sprintf("%s free", formatBytes(free))
	if free < minBytes {
		return Result{Name: name, Detail: fmt.Sprintf("%s (need %s)", detail, formatBytes(minBytes))}
	}
	return Result{Name: name, Passed: true, Detail: detail}
}

// CheckStore verifies the store answers queries and passes its integrity check.
func CheckStore(ctx context.Context, st *store.Store) Result {
	const name = "Store"
	health, err := st.CheckHealth(ctx)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", st.Driver(), err)}
	}
	if !health.IntegrityOK {
		return Result{Name: name, Detail: fmt.Sprintf("%s integrity check failed: %s", health.Driver, health.IntegrityErr)}
	}
	return Result{
		Name:   name,
		Passed: true,
		Detail: fmt.Sprintf("%s schema v%d, %d queued jobs", health.Driver, health.SchemaVersion, health.QueuedJobs),
	}
}

// CheckArchive verifies the configured snapshot target is writable or reachable.
func CheckArchive(ctx context.Context, cfg *config.Config) Result {
	const name = "Archive"
	switch cfg.Archive.Backend {
	case config.ArchiveMinio:
		sink, err := archive.NewMinioSink(cfg.Archive)
		if err != nil {
			return Result{Name: name, Detail: fmt.Sprintf("minio client: %v", err)}
		}
		checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := sink.Check(checkCtx); err != nil {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", sink.Describe(), err)}
		}
		return Result{Name: name, Passed: true, Detail: sink.Describe() + " reachable"}
	default:
		return CheckDirectoryAccess(name, cfg.Archive.Dir)
	}
}

// CheckNtfy verifies the ntfy server behind the topic URL answers.
func CheckNtfy(ctx context.Context, topic string) Result {
	const name = "ntfy"

	parsed, err := url.Parse(strings.TrimSpace(topic))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return Result{Name: name, Detail: "topic must be a full URL"}
	}
	health := parsed.Scheme + "://" + parsed.Host + "/v1/health"

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, health, nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("health check failed (%v)", err)}
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("health check failed (%v)", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{Name: name, Detail: fmt.Sprintf("health check failed (%d)", resp.StatusCode)}
	}
	return Result{Name: name, Passed: true, Detail: "Reachable"}
}

// CheckStages reports the readiness of every registered stage.
func CheckStages(ctx context.Context, reg *stage.Registry) []Result {
	health := reg.CheckAll(ctx)
	results := make([]Result, 0, len(health))
	for _, h := range health {
		detail := h.Detail
		if detail == "" {
			detail = "ready"
		}
		if h.Dependency != "" {
			detail = fmt.Sprintf("%s (%s)", detail, h.Dependency)
		}
		results = append(results, Result{Name: "Stage " + h.Name, Passed: h.Ready, Detail: detail})
	}
	return results
}

func formatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
