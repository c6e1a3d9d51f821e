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
	"bufio"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shenwei356/tagmap/tagmap/tag"
	"github.com/shenwei356/tagmap/tagmap/topm"
	"github.com/shenwei356/xopen"
	"github.com/spf13/cobra"
)

var chunkedCmd = &cobra.Command{
	Use:   "chunked",
	Short: "Create and manage chunked TOPM stores with alignment hypotheses",
	Long: `Create and manage chunked TOPM stores with alignment hypotheses

A chunked store is a directory, keeping tags, best mappings, and variants
in compressed column files, and alignment hypotheses of every tag in
chunks of 65536 tags, which are loaded on demand.

`,
}

var chunkedCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a chunked store from a TOPM file",
	Long: `Create a chunked store from a TOPM file

The best mapping of each tag becomes its first hypothesis, with the aligner
given by --aligner. Other hypothesis slots are empty.

Supported aligners: bowtie2, bwa, blast, bwamem, pe1, pe2.

`,
	Run: func(cmd *cobra.Command, args []string) {
		opt := getOptions(cmd)
		if opt.Log2File {
			defer addLog(opt.LogFile, opt.Verbose).Close()
		}

		inFile := expandPath(getFlagString(cmd, "in-file"))
		outDir := expandPath(getFlagString(cmd, "out-dir"))
		if inFile == "" {
			checkError(fmt.Errorf("flag -i/--in-file needed"))
		}
		if outDir == "" {
			checkError(fmt.Errorf("flag -o/--out-dir needed"))
		}
		if !strings.HasSuffix(strings.ToLower(outDir), topm.ChunkedExt) {
			log.Warningf("the output directory does not end with %s, it can only be recognized by its meta file", topm.ChunkedExt)
		}
		checkOutput(outDir, getFlagBool(cmd, "force"))

		aligner, err := topm.ParseAligner(getFlagString(cmd, "aligner"))
		checkError(err)
		nHyps := getFlagNonNegativeInt(cmd, "hypotheses")

		timeStart := time.Now()

		t, err := topm.ReadTable(inFile)
		checkError(err)
		if opt.Verbose {
			log.Infof("%s rows read from %s", humanize.Comma(int64(t.Len())), inFile)
			log.Infof("creating chunked store with %d hypotheses per tag ...", nHyps)
		}

		s, err := topm.CreateChunked(outDir, t, &topm.ChunkedOptions{
			HypothesisCount: nHyps,
			Aligner:         aligner,
			Threads:         opt.NumCPUs,
		})
		checkError(err)
		meta := s.Meta()
		checkError(s.Close())

		if opt.Verbose {
			log.Infof("  %d chunks of hypotheses written", meta.Chunks)
			log.Infof("done in %s", time.Since(timeStart))
		}
	},
}

var chunkedBestCmd = &cobra.Command{
	Use:   "best",
	Short: "Recompute best mappings from alignment hypotheses",
	Long: `Recompute best mappings from alignment hypotheses

The best mapping of a tag is its first hypothesis of rank 0. The multi-map
count is the number of distinct positions of all rank-0 hypotheses, and
positions are only kept for uniquely mapped tags.

`,
	Run: func(cmd *cobra.Command, args []string) {
		opt := getOptions(cmd)
		if opt.Log2File {
			defer addLog(opt.LogFile, opt.Verbose).Close()
		}

		dir := expandPath(getFlagString(cmd, "in-dir"))
		if dir == "" {
			checkError(fmt.Errorf("flag -i/--in-dir needed"))
		}

		timeStart := time.Now()

		s, err := topm.OpenChunked(dir, &topm.ChunkedOptions{CacheAll: getFlagBool(cmd, "cache-all")})
		checkError(err)

		before, _ := s.Table().MappedTags()
		checkError(s.RecomputeBest())
		after, multi := s.Table().MappedTags()
		checkError(s.Close())

		if opt.Verbose {
			log.Infof("uniquely mapped tags: %s -> %s, multi-mapped tags: %s",
				humanize.Comma(int64(before)), humanize.Comma(int64(after)), humanize.Comma(int64(multi)))
			log.Infof("done in %s", time.Since(timeStart))
		}
	},
}

var chunkedHypCmd = &cobra.Command{
	Use:   "hyp",
	Short: "Show alignment hypotheses of tags",
	Long: `Show alignment hypotheses of tags

Output (tab-delimited):
  tag, slot, best (yes if it is the best mapping), source, rank, chromosome,
  strand, start, end, divergence, score, mapP, and dcoP.
  Empty slots are skipped.

With -a/--aligner, only the unique rank-0 hypothesis of the aligner is
shown, tags mapped to more than one position by the aligner are skipped.

`,
	Run: func(cmd *cobra.Command, args []string) {
		opt := getOptions(cmd)
		if opt.Log2File {
			defer addLog(opt.LogFile, opt.Verbose).Close()
		}

		dir := expandPath(getFlagString(cmd, "in-dir"))
		if dir == "" {
			checkError(fmt.Errorf("flag -i/--in-dir needed"))
		}
		seqs := getFlagStringSlice(cmd, "seq")
		if len(seqs) == 0 {
			checkError(fmt.Errorf("flag -s/--seq needed"))
		}
		var err error

		var aligner topm.Aligner
		alignerStr := getFlagString(cmd, "aligner")
		if alignerStr != "" {
			aligner, err = topm.ParseAligner(alignerStr)
			checkError(err)
		}

		s, err := topm.OpenChunked(dir, &topm.ChunkedOptions{ReadOnly: true})
		checkError(err)
		defer s.Close()

		outfh, err := xopen.Wopen(expandPath(getFlagString(cmd, "out-file")))
		checkError(err)
		defer outfh.Close()
		w := bufio.NewWriter(outfh)
		defer w.Flush()

		fmt.Fprintln(w, "tag\tslot\tbest\tsource\trank\tchr\tstrand\tstart\tend\tdivergence\tscore\tmapP\tdcoP")

		idx, err := s.Index()
		checkError(err)
		for _, q := range seqs {
			tg, err := tag.Encode([]byte(q), s.WordsPerTag())
			checkError(err)
			row := idx.Longest(tg.Words)
			if row < 0 {
				if opt.Verbose {
					log.Warningf("tag not found: %s", q)
				}
				continue
			}

			hyps, err := s.Hypotheses(row)
			checkError(err)
			best, err := s.BestSlot(row)
			checkError(err)
			if alignerStr != "" {
				h, ok, err := s.UniqueMappingOfAligner(row, aligner)
				checkError(err)
				if !ok {
					continue
				}
				hyps = []topm.Hypothesis{h}
				best = topm.MissingInt8
			}
			for slot, h := range hyps {
				if h.Empty() {
					continue
				}
				w.WriteString(q)
				w.WriteByte('\t')
				w.WriteString(strconv.Itoa(slot))
				if int(best) == slot {
					w.WriteString("\tyes")
				} else {
					w.WriteString("\tno")
				}
				for _, f := range h.Fields() {
					w.WriteByte('\t')
					w.WriteString(f)
				}
				w.WriteByte('\n')
			}
		}
	},
}

func init() {
	RootCmd.AddCommand(chunkedCmd)
	chunkedCmd.AddCommand(chunkedCreateCmd)
	chunkedCmd.AddCommand(chunkedBestCmd)
	chunkedCmd.AddCommand(chunkedHypCmd)

	chunkedCreateCmd.Flags().StringP("in-file", "i", "",
		formatFlagUsage(`Input TOPM file.`))
	chunkedCreateCmd.Flags().StringP("out-dir", "o", "",
		formatFlagUsage(`Output directory, with a suffix of ".topmc".`))
	chunkedCreateCmd.Flags().IntP("hypotheses", "n", 4,
		formatFlagUsage(`Number of hypothesis slots per tag. 0 for no hypotheses.`))
	chunkedCreateCmd.Flags().StringP("aligner", "a", "bwa",
		formatFlagUsage(`Aligner of the best mappings in the input.`))
	chunkedCreateCmd.Flags().BoolP("force", "", false,
		formatFlagUsage(`Overwrite the existing output.`))

	chunkedBestCmd.Flags().StringP("in-dir", "i", "",
		formatFlagUsage(`Chunked store.`))
	chunkedBestCmd.Flags().BoolP("cache-all", "c", false,
		formatFlagUsage(`Keep all hypothesis chunks in memory.`))

	chunkedHypCmd.Flags().StringP("in-dir", "i", "",
		formatFlagUsage(`Chunked store.`))
	chunkedHypCmd.Flags().StringSliceP("seq", "s", []string{},
		formatFlagUsage(`Tag sequences to query.`))
	chunkedHypCmd.Flags().StringP("aligner", "a", "",
		formatFlagUsage(`Only show the unique mapping of an aligner.`))
	chunkedHypCmd.Flags().StringP("out-file", "o", "-",
		formatFlagUsage(`Out file ("-" for stdout).`))

	chunkedCmd.SetUsageTemplate(usageTemplate(""))
	chunkedCreateCmd.SetUsageTemplate(usageTemplate(""))
	chunkedBestCmd.SetUsageTemplate(usageTemplate(""))
	chunkedHypCmd.SetUsageTemplate(usageTemplate(""))
}
