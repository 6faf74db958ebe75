package server

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/pprof"
	"sort"
	"time"

	"github.com/google/pprof/profile"
)

// FuncSample is the flat CPU time attributed to one function.
type FuncSample struct {
	Name string
	Flat time.Duration
}

// CPUProfiler records a CPU profile into a directory.
type CPUProfiler struct {
	path string
	file *os.File
	buf  bytes.Buffer
}

// StartCPUProfile begins profiling into dir/cpu-<unix>.pprof.
func StartCPUProfile(dir string) (*CPUProfiler, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create profile dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("cpu-%d.pprof", time.Now().Unix()))
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create profile file: %w", err)
	}

	p := &CPUProfiler{path: path, file: f}
	if err := pprof.StartCPUProfile(io.MultiWriter(f, &p.buf)); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("start cpu profile: %w", err)
	}
	return p, nil
}

// Path is where the profile is written.
func (p *CPUProfiler) Path() string {
	return p.path
}

// Stop flushes the profile and returns the top functions by flat time.
func (p *CPUProfiler) Stop(top int) ([]FuncSample, error) {
	pprof.StopCPUProfile()
	if err := p.file.Close(); err != nil {
		return nil, fmt.Errorf("close profile file: %w", err)
	}
	if p.buf.Len() == 0 {
		return nil, nil
	}
	prof, err := profile.Parse(bytes.NewReader(p.buf.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("parse cpu profile: %w", err)
	}
	return TopFunctions(prof, top), nil
}

// TopFunctions aggregates flat CPU samples by leaf function name.
func TopFunctions(prof *profile.Profile, n int) []FuncSample {
	valueIdx := len(prof.SampleType) - 1
	for i, st := range prof.SampleType {
		if st.Type == "cpu" {
			valueIdx = i
		}
	}
	if valueIdx < 0 {
		return nil
	}

	flat := make(map[string]int64)
	for _, s := range prof.Sample {
		if len(s.Location) == 0 || len(s.Location[0].Line) == 0 || valueIdx >= len(s.Value) {
			continue
		}
		fn := s.Location[0].Line[0].Function
		if fn == nil {
			continue
		}
		flat[fn.Name] += s.Value[valueIdx]
	}

	out := make([]FuncSample, 0, len(flat))
	for name, v := range flat {
		out = append(out, FuncSample{Name: name, Flat: time.Duration(v)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Flat != out[j].Flat {
			return out[i].Flat > out[j].Flat
		}
		return out[i].Name < out[j].Name
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
