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

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Create TOPM files from alignments or sequences of tags",
	Long: `Create TOPM files from alignments or sequences of tags

`,
}

var importSAMCmd = &cobra.Command{
	Use:   "sam",
	Short: "Create a TOPM file from SAM files of BWA or bowtie2",
	Long: `Create a TOPM file from SAM files of BWA or bowtie2

Input:
  1. Read names should contain tag lengths, e.g., "length=64count=3".
  2. Reference names should be integers, optionally prefixed with "chr".
  3. Bowtie2 files are recognized by the @PG header line.

Mappings:
  - BWA: the number of best hits comes from the X0 field.
  - bowtie2: a tag maps to many positions if the best alignment score (AS)
    is not larger than the second best (XS).
  - Positions are only kept for tags with a single best hit.

`,
	Run: func(cmd *cobra.Command, args []string) {
		opt := getOptions(cmd)
		if opt.Log2File {
			defer addLog(opt.LogFile, opt.Verbose).Close()
		}

		files, outFile, k := importFlags(cmd, args)
		timeStart := time.Now()

		tables := make([]topm.Store, 0, len(files))
		for _, file := range files {
			t, format, err := topm.ReadSAM(file, k)
			checkError(err)
			if opt.Verbose {
				unique, multi := t.MappedTags()
				log.Infof("%s (%s): %s tags, %s uniquely mapped, %s multi-mapped", file, format,
					humanize.Comma(int64(t.Len())), humanize.Comma(int64(unique)), humanize.Comma(int64(multi)))
			}
			tables = append(tables, t)
		}

		saveImported(opt, tables, outFile)
		if opt.Verbose {
			log.Infof("done in %s", time.Since(timeStart))
		}
	},
}

var importFastxCmd = &cobra.Command{
	Use:   "fastx",
	Short: "Create a TOPM file of unmapped tags from FASTA/Q files",
	Long: `Create a TOPM file of unmapped tags from FASTA/Q files

Sequences longer than the key are truncated, and the ones with bases other
than A, C, G, T are skipped. Tag lengths are taken from the sequence names
if they contain "length=".

`,
	Run: func(cmd *cobra.Command, args []string) {
		opt := getOptions(cmd)
		if opt.Log2File {
			defer addLog(opt.LogFile, opt.Verbose).Close()
		}

		files, outFile, k := importFlags(cmd, args)
		timeStart := time.Now()

		t, err := topm.ReadFastx(files, k)
		checkError(err)
		if opt.Verbose {
			log.Infof("%s tags read from %d files", humanize.Comma(int64(t.Len())), len(files))
		}

		saveImported(opt, []topm.Store{t}, outFile)
		if opt.Verbose {
			log.Infof("done in %s", time.Since(timeStart))
		}
	},
}

func importFlags(cmd *cobra.Command, args []string) ([]string, string, int) {
	k := getFlagPositiveInt(cmd, "words")
	if k > topm.MaxWordsPerTag {
		checkError(fmt.Errorf("value of -k/--words should be <= %d", topm.MaxWordsPerTag))
	}

	outFile := expandPath(getFlagString(cmd, "out-file"))
	if outFile == "" {
		checkError(fmt.Errorf("flag -o/--out-file needed"))
	}
	if topm.FormatOf(outFile) == topm.FormatUnknown {
		checkError(fmt.Errorf("unknown format of the output file: %s", outFile))
	}
	checkOutput(outFile, getFlagBool(cmd, "force"))

	if len(args) == 0 {
		checkError(fmt.Errorf("no input files given"))
	}
	return getInputFiles(args, "", nil, 1), outFile, k
}

// saveImported merges tables of the same tags and writes the result.
func saveImported(opt *Options, tables []topm.Store, outFile string) {
	t, stats, err := topm.Merge(tables, &topm.MergeOptions{Parallel: opt.NumCPUs > 1})
	checkError(err)
	if opt.Verbose {
		log.Infof("%s unique tags, writing to %s", humanize.Comma(int64(t.Len())), outFile)
		if stats.PlaceholdersFilled+stats.RecordsKept > 0 {
			log.Infof("  %s duplicated tags merged", humanize.Comma(int64(stats.PlaceholdersFilled+stats.RecordsKept)))
		}
	}
	checkError(topm.Save(t, outFile, nil))
}

func init() {
	RootCmd.AddCommand(importCmd)
	importCmd.AddCommand(importSAMCmd)
	importCmd.AddCommand(importFastxCmd)

	for _, c := range []*cobra.Command{importSAMCmd, importFastxCmd} {
		c.Flags().IntP("words", "k", 2,
			formatFlagUsage(`Number of 64-bit words of a tag key, each word holds 32 bases.`))
		c.Flags().StringP("out-file", "o", "",
			formatFlagUsage(`Output TOPM file, the format is decided by the extension.`))
		c.Flags().BoolP("force", "", false,
			formatFlagUsage(`Overwrite the existing output.`))
		c.SetUsageTemplate(usageTemplate("{input files}"))
	}
	importCmd.SetUsageTemplate(usageTemplate(""))
}
