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
	"regexp"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/shenwei356/tagmap/tagmap/topm"
	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Merge multiple TOPM files",
	Long: `Merge multiple TOPM files

Rules:
  1. Tags are deduplicated, and the longest tag length is kept.
  2. The mapping of a tag comes from the first file having it, unless the
     mapping has no known position, in which case the mapping of a later
     file replaces it and the multi-map counts are added.
  3. Variants of a tag are collected from all files, one per offset.
     Variants not fitting in the row are discarded.

Input:
  Files can be given as positional arguments, or in a directory via
  -I/--in-dir, filtered by -r/--file-regexp.

`,
	Run: func(cmd *cobra.Command, args []string) {
		opt := getOptions(cmd)
		if opt.Log2File {
			defer addLog(opt.LogFile, opt.Verbose).Close()
		}

		outFile := expandPath(getFlagString(cmd, "out-file"))
		if outFile == "" {
			checkError(fmt.Errorf("flag -o/--out-file needed"))
		}
		if topm.FormatOf(outFile) == topm.FormatUnknown {
			checkError(fmt.Errorf("unknown format of the output file: %s", outFile))
		}
		checkOutput(outFile, getFlagBool(cmd, "force"))

		reFileStr := getFlagString(cmd, "file-regexp")
		reFile, err := regexp.Compile("(?i)" + reFileStr)
		if err != nil {
			checkError(errors.Wrapf(err, "failed to parse regular expression for matching file: %s", reFileStr))
		}

		files := getInputFiles(args, getFlagString(cmd, "in-dir"), reFile, opt.NumCPUs)
		if len(files) == 0 {
			checkError(fmt.Errorf("no input files given"))
		}
		if opt.Verbose {
			log.Infof("%d input files", len(files))
		}

		maxVariants := getFlagNonNegativeInt(cmd, "max-variants")

		timeStart := time.Now()

		if opt.Verbose {
			log.Infof("reading and merging ...")
		}
		pbs, bar := newReadingBar(len(files), opt)
		mopt := &topm.MergeOptions{
			MaxVariants: maxVariants,
			Parallel:    opt.NumCPUs > 1,
			Threads:     opt.NumCPUs,
		}
		if bar != nil {
			mopt.OnOpen = func(file string, elapsed time.Duration) {
				bar.EwmaIncrBy(1, elapsed)
			}
		}
		t, stats, err := topm.MergeFiles(files, mopt)
		checkError(err)
		if pbs != nil {
			pbs.Wait()
		}
		if opt.Verbose {
			log.Infof("  %s rows in, %s rows out",
				humanize.Comma(int64(stats.InputRows)), humanize.Comma(int64(stats.OutputRows)))
			log.Infof("  records: %s copied, %s merged into ones without positions, %s ignored",
				humanize.Comma(int64(stats.RecordsCopied)),
				humanize.Comma(int64(stats.PlaceholdersFilled)),
				humanize.Comma(int64(stats.RecordsKept)))
			log.Infof("  variants: %s added, %s duplicated, %s discarded",
				humanize.Comma(int64(stats.VariantsAdded)),
				humanize.Comma(int64(stats.VariantsDuplicate)),
				humanize.Comma(int64(stats.VariantsDiscarded)))
		}
		if stats.VariantsDiscarded > 0 {
			log.Warningf("%s variants discarded, try a larger --max-variants",
				humanize.Comma(int64(stats.VariantsDiscarded)))
		}

		if opt.Verbose {
			log.Infof("writing %s ...", outFile)
		}
		checkError(topm.Save(t, outFile, nil))

		if opt.Verbose {
			log.Infof("done in %s", time.Since(timeStart))
		}
	},
}

// newReadingBar creates a progress bar of opened files in the verbose mode.
func newReadingBar(n int, opt *Options) (*mpb.Progress, *mpb.Bar) {
	if !opt.Verbose {
		return nil, nil
	}
	pbs := mpb.New(mpb.WithWidth(40), mpb.WithOutput(os.Stderr))
	bar := pbs.AddBar(int64(n),
		mpb.PrependDecorators(
			decor.Name("read files: ", decor.WC{W: len("read files: "), C: decor.DindentRight}),
			decor.Name("", decor.WCSyncSpaceR),
			decor.CountersNoUnit("%d / %d", decor.WCSyncWidth),
		),
		mpb.AppendDecorators(
			decor.Name("ETA: ", decor.WC{W: len("ETA: ")}),
			decor.EwmaETA(decor.ET_STYLE_GO, 10),
			decor.OnComplete(decor.Name(""), ". done"),
		),
	)
	return pbs, bar
}

func init() {
	RootCmd.AddCommand(mergeCmd)

	mergeCmd.Flags().StringP("out-file", "o", "",
		formatFlagUsage(`Output TOPM file, the format is decided by the extension.`))
	mergeCmd.Flags().StringP("in-dir", "I", "",
		formatFlagUsage(`Directory containing TOPM files. Directory and file symlinks are followed.`))
	mergeCmd.Flags().StringP("file-regexp", "r", `\.topm(\.txt|\.bin)?(\.gz)?$|\.topmc$`,
		formatFlagUsage(`Regular expression for matching files in -I/--in-dir, case ignored.`))
	mergeCmd.Flags().IntP("max-variants", "m", 0,
		formatFlagUsage(`Maximum number of variants per row of the output. 0 for the largest one of inputs.`))
	mergeCmd.Flags().BoolP("force", "", false,
		formatFlagUsage(`Overwrite the existing output.`))

	mergeCmd.SetUsageTemplate(usageTemplate("[TOPM files]"))
}
