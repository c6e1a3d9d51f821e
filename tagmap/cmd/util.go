// Copyright © 2023-2024 Wei Shen <shenwei356@gmail.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"

	"github.com/iafan/cwalk"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/shenwei356/util/pathutil"
	"github.com/spf13/cobra"
	"github.com/twotwotwo/sorts"
)

// Options contains the global flags
type Options struct {
	NumCPUs int
	Verbose bool

	LogFile  string
	Log2File bool
}

func getOptions(cmd *cobra.Command) *Options {
	threads := getFlagNonNegativeInt(cmd, "threads")
	if threads == 0 {
		threads = runtime.NumCPU()
	}

	sorts.MaxProcs = threads
	runtime.GOMAXPROCS(threads)

	logfile := getFlagString(cmd, "log")
	return &Options{
		NumCPUs: threads,
		Verbose: !getFlagBool(cmd, "quiet"),

		LogFile:  logfile,
		Log2File: logfile != "",
	}
}

func checkError(err error) {
	if err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

func isStdin(file string) bool {
	return file == "-"
}

// ------------------------------------------------------------------

func getFlagString(cmd *cobra.Command, flag string) string {
	value, err := cmd.Flags().GetString(flag)
	checkError(err)
	return value
}

func getFlagBool(cmd *cobra.Command, flag string) bool {
	value, err := cmd.Flags().GetBool(flag)
	checkError(err)
	return value
}

func getFlagPositiveInt(cmd *cobra.Command, flag string) int {
	value, err := cmd.Flags().GetInt(flag)
	checkError(err)
	if value <= 0 {
		checkError(fmt.Errorf("value of flag --%s should be greater than 0", flag))
	}
	return value
}

func getFlagNonNegativeInt(cmd *cobra.Command, flag string) int {
	value, err := cmd.Flags().GetInt(flag)
	checkError(err)
	if value < 0 {
		checkError(fmt.Errorf("value of flag --%s should be greater than or equal to 0", flag))
	}
	return value
}

func getFlagStringSlice(cmd *cobra.Command, flag string) []string {
	value, err := cmd.Flags().GetStringSlice(flag)
	checkError(err)
	return value
}

// ------------------------------------------------------------------

// expandPath expands "~" in a path.
func expandPath(file string) string {
	if file == "" || isStdin(file) {
		return file
	}
	p, err := homedir.Expand(file)
	checkError(errors.Wrap(err, file))
	return p
}

// getInputFiles collects files from positional arguments and files in a
// directory matching a regular expression.
func getInputFiles(args []string, inDir string, reFile *regexp.Regexp, threads int) []string {
	files := make([]string, 0, len(args))
	for _, file := range args {
		files = append(files, expandPath(file))
	}

	if inDir != "" {
		inDir = expandPath(inDir)
		isDir, err := pathutil.IsDir(inDir)
		if err != nil {
			checkError(errors.Wrapf(err, "checking -I/--in-dir"))
		}
		if !isDir {
			checkError(fmt.Errorf("value of -I/--in-dir should be a directory: %s", inDir))
		}
		_files, err := getFileListFromDir(inDir, reFile, threads)
		checkError(errors.Wrapf(err, "walking dir: %s", inDir))
		files = append(files, _files...)
	}

	for _, file := range files {
		if isStdin(file) {
			checkError(fmt.Errorf("stdin not supported"))
		}
		ok, err := pathutil.Exists(file)
		checkError(errors.Wrap(err, file))
		if !ok {
			checkError(fmt.Errorf("file does not exist: %s", file))
		}
	}
	return files
}

func getFileListFromDir(path string, pattern *regexp.Regexp, threads int) ([]string, error) {
	files := make([]string, 0, 512)
	ch := make(chan string, threads)
	done := make(chan int)
	go func() {
		for file := range ch {
			files = append(files, file)
		}
		done <- 1
	}()

	cwalk.NumWorkers = threads
	err := cwalk.WalkWithSymlinks(path, func(_path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		// chunked stores are directories
		if pattern.MatchString(info.Name()) && (!info.IsDir() || strings.HasSuffix(info.Name(), ".topmc")) {
			ch <- filepath.Join(path, _path)
		}
		return nil
	})
	close(ch)
	<-done
	if err != nil {
		return nil, err
	}

	return files, err
}

// checkOutput refuses to overwrite an existing file or directory without --force.
func checkOutput(file string, force bool) {
	existed, err := pathutil.Exists(file)
	checkError(errors.Wrap(err, file))
	if !existed {
		return
	}
	if !force {
		checkError(fmt.Errorf("output exists: %s, use --force to overwrite", file))
	}
	checkError(os.RemoveAll(file))
}

var reRegion = regexp.MustCompile(`^(?:chr)?(\d+):(\d+)-(\d+)$`)

// parseRegion parses regions like "chr1:1000-2000" and "1:1000-2000".
func parseRegion(s string) (chr, start, end int32, err error) {
	m := reRegion.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, 0, fmt.Errorf("invalid region: %s, e.g., 1:1000-2000", s)
	}
	var v [3]int64
	for i := range v {
		v[i], err = strconv.ParseInt(m[i+1], 10, 32)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("invalid region: %s", s)
		}
	}
	if v[1] > v[2] {
		return 0, 0, 0, fmt.Errorf("invalid region: %s, start > end", s)
	}
	return int32(v[0]), int32(v[1]), int32(v[2]), nil
}
