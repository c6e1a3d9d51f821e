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

	"github.com/shenwei356/tagmap/tagmap/tag"
	"github.com/shenwei356/tagmap/tagmap/topm"
	"github.com/shenwei356/xopen"
	"github.com/spf13/cobra"
)

var viewCmd = &cobra.Command{
	Use:   "view",
	Short: "Query a TOPM file by tag sequences or genomic regions",
	Long: `Query a TOPM file by tag sequences or genomic regions

Queries:
  1. -s/--seq: tag sequences, the row with the longest tag sharing the key
     is reported.
  2. -R/--region: rows with start positions in a region, e.g., 1:1000-2000.
     With --overlap, rows whose spans overlap with the region.
  3. No queries: all rows.

Output (tab-delimited):
  row, tag, length, multimaps, chromosome, strand, start, end, divergence,
  mapP, dcoP, and variants (offset:allele, comma separated).
  Missing values are "*".

`,
	Run: func(cmd *cobra.Command, args []string) {
		opt := getOptions(cmd)
		if opt.Log2File {
			defer addLog(opt.LogFile, opt.Verbose).Close()
		}

		inFile := expandPath(getFlagString(cmd, "in-file"))
		if inFile == "" {
			checkError(fmt.Errorf("flag -i/--in-file needed"))
		}
		seqs := getFlagStringSlice(cmd, "seq")
		regions := getFlagStringSlice(cmd, "region")
		overlap := getFlagBool(cmd, "overlap")
		if overlap && len(regions) == 0 {
			checkError(fmt.Errorf("flag --overlap only works with -R/--region"))
		}

		outfh, err := xopen.Wopen(expandPath(getFlagString(cmd, "out-file")))
		checkError(err)
		defer outfh.Close()
		w := bufio.NewWriterSize(outfh, topm.BufferSize)
		defer w.Flush()

		s, err := topm.Open(inFile, &topm.ChunkedOptions{ReadOnly: true})
		checkError(err)
		defer s.Close()

		if t, ok := s.(*topm.Table); ok && (len(seqs) > 0 || len(regions) > 0) {
			if _, err = t.Index(); err != nil {
				if opt.Verbose {
					log.Infof("sorting %d rows ...", t.Len())
				}
				t.Sort(opt.NumCPUs > 1)
			}
		}

		fmt.Fprintln(w, "row\ttag\tlength\tmultimaps\tchr\tstrand\tstart\tend\tdivergence\tmapP\tdcoP\tvariants")

		if len(seqs) == 0 && len(regions) == 0 {
			for i := 0; i < s.Len(); i++ {
				checkError(writeRow(w, s, i))
			}
			return
		}

		idx, err := s.Index()
		checkError(err)

		for _, q := range seqs {
			tg, err := tag.Encode([]byte(q), s.WordsPerTag())
			checkError(err)
			i := idx.Longest(tg.Words)
			if i < 0 {
				if opt.Verbose {
					log.Warningf("tag not found: %s", q)
				}
				continue
			}
			checkError(writeRow(w, s, i))
		}

		var rows []int
		for _, r := range regions {
			chr, start, end, err := parseRegion(r)
			checkError(err)
			if overlap {
				rows, err = idx.Overlaps(chr, start, end)
				checkError(err)
			} else {
				rows = idx.PositionRange(chr, start, end)
			}
			if opt.Verbose {
				log.Infof("%s: %d rows", r, len(rows))
			}
			for _, i := range rows {
				checkError(writeRow(w, s, i))
			}
		}
	},
}

func writeRow(w *bufio.Writer, s topm.Store, i int) error {
	tg, err := s.Tag(i)
	if err != nil {
		return err
	}
	rec, err := s.Get(i)
	if err != nil {
		return err
	}
	vars, err := s.Variants(i)
	if err != nil {
		return err
	}

	fields := rec.Fields()
	w.WriteString(strconv.Itoa(i))
	w.WriteByte('\t')
	w.WriteString(tg.String())
	w.WriteByte('\t')
	w.WriteString(strconv.Itoa(int(tg.Len)))
	for _, f := range fields {
		w.WriteByte('\t')
		w.WriteString(f)
	}
	w.WriteByte('\t')
	if len(vars) == 0 {
		w.WriteByte('*')
	} else {
		vs := make([]string, len(vars))
		for j, v := range vars {
			vs[j] = v.String()
		}
		w.WriteString(strings.Join(vs, ","))
	}
	return w.WriteByte('\n')
}

func init() {
	RootCmd.AddCommand(viewCmd)

	viewCmd.Flags().StringP("in-file", "i", "",
		formatFlagUsage(`Input TOPM file.`))
	viewCmd.Flags().StringP("out-file", "o", "-",
		formatFlagUsage(`Out file, supports and recommends a ".gz" suffix ("-" for stdout).`))
	viewCmd.Flags().StringSliceP("seq", "s", []string{},
		formatFlagUsage(`Tag sequences to query.`))
	viewCmd.Flags().StringSliceP("region", "R", []string{},
		formatFlagUsage(`Genomic regions to query, e.g., 1:1000-2000.`))
	viewCmd.Flags().BoolP("overlap", "", false,
		formatFlagUsage(`Report rows overlapping with regions, instead of the ones starting in regions.`))

	viewCmd.SetUsageTemplate(usageTemplate(""))
}
