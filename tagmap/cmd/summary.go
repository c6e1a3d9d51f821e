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
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/shenwei356/tagmap/tagmap/topm"
	"github.com/shenwei356/xopen"
	"github.com/spf13/cobra"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Summarize a TOPM file",
	Long: `Summarize a TOPM file

Tags are grouped as:
  - uniquely mapped: with known chromosomes.
  - multi-mapped:    mapped to more than one position.
  - unmapped:        the others.

With -p/--plot, the numbers of tags by multi-map counts are plotted.
The image format is decided by the extension: .png, .jpg, .svg, .pdf, .eps.

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
		plotFile := expandPath(getFlagString(cmd, "plot"))

		t, err := topm.ReadTable(inFile)
		checkError(err)
		s := topm.Summarize(t)

		outfh, err := xopen.Wopen(expandPath(getFlagString(cmd, "out-file")))
		checkError(err)
		defer outfh.Close()

		pct := func(n int) string {
			if s.Rows == 0 {
				return "0.00"
			}
			return fmt.Sprintf("%.2f", float64(n)*100/float64(s.Rows))
		}
		fmt.Fprintf(outfh, "file:\t%s\n", inFile)
		fmt.Fprintf(outfh, "tags:\t%s\n", humanize.Comma(int64(s.Rows)))
		fmt.Fprintf(outfh, "words per tag:\t%d\n", s.WordsPerTag)
		fmt.Fprintf(outfh, "max variants per tag:\t%d\n", s.MaxVariants)
		fmt.Fprintf(outfh, "uniquely mapped:\t%s (%s%%)\n", humanize.Comma(int64(s.UniquelyMapped)), pct(s.UniquelyMapped))
		fmt.Fprintf(outfh, "multi-mapped:\t%s (%s%%)\n", humanize.Comma(int64(s.MultiMapped)), pct(s.MultiMapped))
		fmt.Fprintf(outfh, "unmapped:\t%s (%s%%)\n", humanize.Comma(int64(s.Unmapped)), pct(s.Unmapped))
		fmt.Fprintf(outfh, "chromosomes:\t%d\n", s.Chromosomes)
		fmt.Fprintf(outfh, "tag length:\t%.2f ± %.2f\n", s.TagLengthMean, s.TagLengthStdDev)
		fmt.Fprintf(outfh, "divergence:\t%.2f ± %.2f\n", s.DivergenceMean, s.DivergenceStdDev)
		fmt.Fprintf(outfh, "variants:\t%s\n", humanize.Comma(int64(s.Variants)))
		fmt.Fprintf(outfh, "variant sites:\t%s\n", humanize.Comma(int64(s.VariantSites)))
		fmt.Fprintf(outfh, "variants per tag:\t%.2f ± %.2f\n", s.VariantsMean, s.VariantsStdDev)
		fmt.Fprintf(outfh, "tags with full variants:\t%s\n", humanize.Comma(int64(s.TagsFullVariants)))

		fmt.Fprintf(outfh, "multimaps\ttags\n")
		for i, n := range s.MappingDistribution {
			if n > 0 {
				fmt.Fprintf(outfh, "%d\t%s\n", i, humanize.Comma(int64(n)))
			}
		}

		if plotFile != "" {
			checkError(plotMappingDistribution(s, plotFile))
			if opt.Verbose {
				log.Infof("plot saved to %s", plotFile)
			}
		}
	},
}

// plotMappingDistribution draws a bar chart of non-empty bins.
func plotMappingDistribution(s *topm.Summary, file string) error {
	values := make(plotter.Values, 0, 16)
	labels := make([]string, 0, 16)
	for i, n := range s.MappingDistribution {
		if n == 0 {
			continue
		}
		values = append(values, float64(n))
		if i == int(topm.MultiMapMany) {
			labels = append(labels, "many")
		} else {
			labels = append(labels, strconv.Itoa(i))
		}
	}
	if len(values) == 0 {
		return fmt.Errorf("no tags to plot")
	}

	p := plot.New()
	p.Title.Text = "Tags by the number of mapped positions"
	p.X.Label.Text = "Positions"
	p.Y.Label.Text = "Tags"

	bars, err := plotter.NewBarChart(values, vg.Points(16))
	if err != nil {
		return err
	}
	bars.LineStyle.Width = vg.Length(0)
	p.Add(bars)
	p.NominalX(labels...)

	return p.Save(vg.Length(max(4, len(values)/2))*vg.Inch, 3*vg.Inch, file)
}

func init() {
	RootCmd.AddCommand(summaryCmd)

	summaryCmd.Flags().StringP("in-file", "i", "",
		formatFlagUsage(`Input TOPM file.`))
	summaryCmd.Flags().StringP("out-file", "o", "-",
		formatFlagUsage(`Out file ("-" for stdout).`))
	summaryCmd.Flags().StringP("plot", "p", "",
		formatFlagUsage(`Plot the numbers of tags by multi-map counts to a file.`))

	summaryCmd.SetUsageTemplate(usageTemplate(""))
}
