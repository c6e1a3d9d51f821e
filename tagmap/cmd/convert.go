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
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shenwei356/tagmap/tagmap/topm"
	"github.com/spf13/cobra"
)

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Convert a TOPM file between formats",
	Long: `Convert a TOPM file between formats

Formats are decided by file extensions:

  *.topm, *.topm.bin(.gz)   binary
  *.topm.txt(.gz)           text
  *.topmc                   chunked directory

Tips:
  1. Chunked stores are always sorted by tags.
  2. Use --collapse to merge rows of the same tag, positions of duplicated
     tags are kept only when they agree.

`,
	Run: func(cmd *cobra.Command, args []string) {
		opt := getOptions(cmd)
		if opt.Log2File {
			defer addLog(opt.LogFile, opt.Verbose).Close()
		}

		inFile := expandPath(getFlagString(cmd, "in-file"))
		outFile := expandPath(getFlagString(cmd, "out-file"))
		if inFile == "" {
			checkError(fmt.Errorf("flag -i/--in-file needed"))
		}
		if outFile == "" {
			checkError(fmt.Errorf("flag -o/--out-file needed"))
		}
		if topm.FormatOf(outFile) == topm.FormatUnknown {
			checkError(fmt.Errorf("unknown format of the output file: %s", outFile))
		}
		checkOutput(outFile, getFlagBool(cmd, "force"))

		maxVariants := getFlagNonNegativeInt(cmd, "max-variants")
		requirePosition := getFlagBool(cmd, "require-position")
		collapse := getFlagBool(cmd, "collapse")

		timeStart := time.Now()

		if opt.Verbose {
			log.Infof("reading %s ...", inFile)
		}
		t, err := topm.ReadTable(inFile)
		checkError(err)
		if opt.Verbose {
			log.Infof("  %s rows, %d words per tag, at most %d variants per row",
				humanize.Comma(int64(t.Len())), t.WordsPerTag(), t.MaxVariants())
		}

		if maxVariants > 0 {
			ok, err := t.ExpandMaxVariants(maxVariants)
			checkError(err)
			if !ok && maxVariants != t.MaxVariants() {
				log.Warningf("--max-variants (%d) is smaller than the current one (%d), ignored",
					maxVariants, t.MaxVariants())
			}
		}

		if collapse {
			n := t.Len()
			t = t.CollapseDuplicates(opt.NumCPUs > 1)
			if opt.Verbose {
				log.Infof("  %s rows left after collapsing %s rows",
					humanize.Comma(int64(t.Len())), humanize.Comma(int64(n)))
			}
		}

		if opt.Verbose {
			log.Infof("writing %s ...", outFile)
		}
		checkError(topm.Save(t, outFile, &topm.WriteOptions{RequirePhysPosition: requirePosition}))

		if opt.Verbose {
			log.Infof("done in %s", time.Since(timeStart))
		}
	},
}

func init() {
	RootCmd.AddCommand(convertCmd)

	convertCmd.Flags().StringP("in-file", "i", "",
		formatFlagUsage(`Input TOPM file.`))
	convertCmd.Flags().StringP("out-file", "o", "",
		formatFlagUsage(`Output TOPM file, the format is decided by the extension.`))
	convertCmd.Flags().IntP("max-variants", "m", 0,
		formatFlagUsage(`Expand the maximum number of variants per row. 0 for unchanged.`))
	convertCmd.Flags().BoolP("require-position", "p", false,
		formatFlagUsage(`Only write tags with known physical positions.`))
	convertCmd.Flags().BoolP("collapse", "c", false,
		formatFlagUsage(`Collapse rows of the same tag.`))
	convertCmd.Flags().BoolP("force", "", false,
		formatFlagUsage(`Overwrite the existing output.`))

	convertCmd.SetUsageTemplate(usageTemplate(""))
}
