package cli

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/openet/core/internal/engine"
	"github.com/openet/core/pkg/common"
	"github.com/openet/core/pkg/ensemble"
	"github.com/openet/core/pkg/interpolate"
	"github.com/openet/core/pkg/landsat"
	"github.com/openet/core/pkg/raster"
	"github.com/openet/core/pkg/storage"
	"github.com/openet/core/pkg/utils"
)

// Commands in this file work on local parquet collection files

func (c *CLI) readCollection(path string) (*raster.Collection, error) {
	coll, err := storage.ReadCollectionFile(c.resolvePath(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return coll, nil
}

func (c *CLI) writeCollection(path string, coll *raster.Collection) error {
	data, err := storage.EncodeCollection(coll)
	if err != nil {
		return err
	}
	if err := os.WriteFile(c.resolvePath(path), data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	c.printSuccess(fmt.Sprintf("Wrote %d images to %s", coll.Len(), path))
	return nil
}

func parseRange(start, end string) (time.Time, time.Time, error) {
	s, err := utils.ValidDate(start)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("--start: %w", err)
	}
	e, err := utils.ValidDate(end)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("--end: %w", err)
	}
	return s, e, nil
}

func (c *CLI) newInterpolateCmd() *cobra.Command {
	var (
		reference    string
		interpSource string
		interpBand   string
		start, end   string
		interval     string
		variables    []string
		output       string
		mask         bool
	)
	cmd := &cobra.Command{
		Use:   "interpolate SCENES",
		Short: "Interpolate a scene collection file to daily ET and aggregate it",
		Long: `Interpolate reads scene et_fraction from a parquet collection, interpolates
it to each day of the reference ET collection and aggregates the result into
the requested interval. With --interp-source the scene ET fraction is first
converted to actual ET against that source.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfigOrDefault()
			if err != nil {
				return err
			}
			startDate, endDate, err := parseRange(start, end)
			if err != nil {
				return err
			}
			if interval == "" && cfg.Export != nil {
				interval = cfg.Export.Interval
			}
			tInterval, err := interpolate.ParseTInterval(interval)
			if err != nil {
				return err
			}
			if len(variables) == 0 && cfg.Export != nil {
				variables = cfg.Export.Variables
			}

			scenes, err := c.readCollection(args[0])
			if err != nil {
				return err
			}
			if mask {
				opts := engine.MaskOptions(cfg.CloudMask)
				opts.CloudScore = false
				if scenes, err = maskCollection(scenes, opts, nil); err != nil {
					return err
				}
			}
			refColl, err := c.readCollection(reference)
			if err != nil {
				return err
			}

			var interpSrc interpolate.ReferenceSource
			fn := interpolate.FromSceneETFraction
			if interpSource != "" {
				coll, err := c.readCollection(interpSource)
				if err != nil {
					return err
				}
				interpSrc = interpolate.NewCollectionSource(coll)
				fn = interpolate.FromSceneETActual
			}
			interp := engine.InterpArgs(cfg, interpolate.NewCollectionSource(refColl), interpSrc)
			if interpBand != "" {
				interp.InterpBand = interpBand
			}

			out, err := fn(cmd.Context(), scenes, startDate, endDate, variables, interp, interpolate.ModelArgs{}, tInterval)
			if err != nil {
				return err
			}
			c.renderCollection(out)
			if output == "" {
				return nil
			}
			return c.writeCollection(output, out)
		},
	}
	cmd.Flags().StringVar(&reference, "reference", "", "reference ET collection file")
	cmd.Flags().StringVar(&interpSource, "interp-source", "", "interpolate actual ET against this collection file")
	cmd.Flags().StringVar(&interpBand, "interp-band", "", "band of the interp source (default collections.interp_band)")
	cmd.Flags().StringVar(&start, "start", "", "start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&end, "end", "", "end date (YYYY-MM-DD, exclusive)")
	cmd.Flags().StringVar(&interval, "interval", "", "daily, monthly, annual or custom (default export.interval)")
	cmd.Flags().StringSliceVar(&variables, "variables", nil, "output variables (default export.variables)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the result to this parquet file")
	cmd.Flags().BoolVar(&mask, "mask", false, "apply the cloud_mask config to scenes with QA_PIXEL")
	_ = cmd.MarkFlagRequired("reference")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func (c *CLI) newAggregateCmd() *cobra.Command {
	var (
		start, end string
		reducer    string
		output     string
	)
	cmd := &cobra.Command{
		Use:   "aggregate INPUT",
		Short: "Merge images acquired on the same day into one image per day",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			coll, err := c.readCollection(args[0])
			if err != nil {
				return err
			}
			var s, e time.Time
			if start != "" {
				if s, err = utils.ValidDate(start); err != nil {
					return err
				}
			}
			if end != "" {
				if e, err = utils.ValidDate(end); err != nil {
					return err
				}
			}
			out, err := interpolate.AggregateDaily(coll, s, e, reducer)
			if err != nil {
				return err
			}
			c.renderCollection(out)
			if output == "" {
				return nil
			}
			return c.writeCollection(output, out)
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "drop images before this date")
	cmd.Flags().StringVar(&end, "end", "", "drop images on or after this date")
	cmd.Flags().StringVar(&reducer, "agg", interpolate.AggregateMean, "aggregation type")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the result to this parquet file")
	return cmd
}

func (c *CLI) newMaskCmd() *cobra.Command {
	var (
		toa    string
		output string
		flags  struct {
			cirrus, dilate, shadow, snow, filter, saturated, srCloudQA, cloudScore bool
			cloudScorePct                                                       float64
		}
	)
	cmd := &cobra.Command{
		Use:   "mask SCENES",
		Short: "Apply the Landsat Collection 2 SR cloud mask to a scene collection file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfigOrDefault()
			if err != nil {
				return err
			}
			// Flags given on the command line override the cloud_mask section
			opts := engine.MaskOptions(cfg.CloudMask)
			set := cmd.Flags().Changed
			for name, v := range map[string]struct{ dst, src *bool }{
				"cirrus":      {&opts.Cirrus, &flags.cirrus},
				"dilate":      {&opts.Dilate, &flags.dilate},
				"shadow":      {&opts.Shadow, &flags.shadow},
				"snow":        {&opts.Snow, &flags.snow},
				"filter":      {&opts.Filter, &flags.filter},
				"saturated":   {&opts.Saturated, &flags.saturated},
				"sr-cloud-qa": {&opts.SRCloudQA, &flags.srCloudQA},
				"cloud-score": {&opts.CloudScore, &flags.cloudScore},
			} {
				if set(name) {
					*v.dst = *v.src
				}
			}
			if set("cloud-score-pct") {
				opts.CloudScorePct = flags.cloudScorePct
			}

			scenes, err := c.readCollection(args[0])
			if err != nil {
				return err
			}
			var toaColl *raster.Collection
			if opts.CloudScore {
				if toa == "" {
					return fmt.Errorf("--toa is required with cloud scoring: %w", common.ErrMissingTOA)
				}
				if toaColl, err = c.readCollection(toa); err != nil {
					return err
				}
			}

			out, err := maskCollection(scenes, opts, toaColl)
			if err != nil {
				return err
			}
			c.renderClear(scenes, out)
			if output == "" {
				return nil
			}
			return c.writeCollection(output, out)
		},
	}
	f := cmd.Flags()
	f.BoolVar(&flags.cirrus, "cirrus", false, "mask cirrus (Landsat 8/9)")
	f.BoolVar(&flags.dilate, "dilate", false, "mask dilated cloud")
	f.BoolVar(&flags.shadow, "shadow", false, "mask cloud shadow")
	f.BoolVar(&flags.snow, "snow", false, "mask snow")
	f.BoolVar(&flags.filter, "filter", false, "remove small clear holes in the mask")
	f.BoolVar(&flags.saturated, "saturated", false, "mask saturated pixels")
	f.BoolVar(&flags.srCloudQA, "sr-cloud-qa", false, "apply SR_CLOUD_QA (Landsat 5/7)")
	f.BoolVar(&flags.cloudScore, "cloud-score", false, "mask with the simple TOA cloud score")
	f.Float64Var(&flags.cloudScorePct, "cloud-score-pct", landsat.DefaultCloudScorePct, "cloud score threshold")
	f.StringVar(&toa, "toa", "", "TOA collection file matched to scenes by scene id")
	f.StringVarP(&output, "output", "o", "", "write the masked scenes to this parquet file")
	return cmd
}

// maskCollection masks every image carrying QA_PIXEL. toa supplies the matched
// TOA scene when opts.CloudScore is set.
func maskCollection(scenes *raster.Collection, opts common.CloudMaskOptions, toa *raster.Collection) (*raster.Collection, error) {
	return scenes.Map(func(img *raster.Image) (*raster.Image, error) {
		if !img.HasBand("QA_PIXEL") {
			return img, nil
		}
		o := opts
		if o.CloudScore {
			if toa == nil {
				return nil, common.ErrMissingTOA
			}
			matched, err := landsat.MatchScene(toa, img.Props.SceneID)
			if err != nil {
				return nil, err
			}
			o.TOA = matched
		}
		mask, err := common.LandsatC2SRCloudMask(img, o)
		if err != nil {
			return nil, fmt.Errorf("scene %s: %w", img.Props.SceneID, err)
		}
		return img.UpdateMask(mask)
	})
}

func (c *CLI) newEnsembleCmd() *cobra.Command {
	var (
		band   string
		scale  float64
		method string
		output string
	)
	cmd := &cobra.Command{
		Use:   "ensemble MODEL=FILE...",
		Short: "Combine model estimates with the MAD or mean ensemble",
		Long: `Ensemble stacks one band from each model collection file, matching images
by index, and reduces the stack with the median absolute deviation filter
(mad) or the simple arithmetic mean (mean).`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if method != "mad" && method != "mean" {
				return fmt.Errorf("unknown ensemble method %q", method)
			}
			if !cmd.Flags().Changed("scale") {
				cfg, err := c.loadConfigOrDefault()
				if err != nil {
					return err
				}
				if cfg.Ensemble != nil && cfg.Ensemble.MADeScale > 0 {
					scale = cfg.Ensemble.MADeScale
				}
			}

			byIndex := make(map[string][]ensemble.Model)
			for _, arg := range args {
				name, path, ok := strings.Cut(arg, "=")
				if !ok || name == "" || path == "" {
					return fmt.Errorf("expected MODEL=FILE, got %q", arg)
				}
				coll, err := c.readCollection(path)
				if err != nil {
					return err
				}
				for _, img := range coll.Images {
					byIndex[img.Props.Index] = append(byIndex[img.Props.Index], ensemble.Model{Name: name, Image: img})
				}
			}

			indexes := make([]string, 0, len(byIndex))
			for idx := range byIndex {
				indexes = append(indexes, idx)
			}
			sort.Strings(indexes)

			out := raster.NewCollection()
			for _, idx := range indexes {
				stack, err := ensemble.Stack(band, byIndex[idx]...)
				if err != nil {
					return fmt.Errorf("image %s: %w", idx, err)
				}
				var img *raster.Image
				if method == "mad" {
					img, err = ensemble.MAD(stack, scale)
				} else {
					img, err = ensemble.Mean(stack)
				}
				if err != nil {
					return fmt.Errorf("image %s: %w", idx, err)
				}
				out.Images = append(out.Images, img)
			}

			c.renderCollection(out)
			if output == "" {
				return nil
			}
			return c.writeCollection(output, out)
		},
	}
	cmd.Flags().StringVar(&band, "band", interpolate.VarET, "band taken from each model")
	cmd.Flags().Float64Var(&scale, "scale", 0, "MADe scale (default ensemble.made_scale)")
	cmd.Flags().StringVar(&method, "method", "mad", "mad or mean")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the ensemble to this parquet file")
	return cmd
}

func (c *CLI) newInspectCmd() *cobra.Command {
	var (
		row, col int
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "inspect INPUT",
		Short: "Print the band values of one pixel for every date in a collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			coll, err := c.readCollection(args[0])
			if err != nil {
				return err
			}
			values, err := coll.PointValues(row, col)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(c.output)
				enc.SetIndent("", "  ")
				return enc.Encode(values)
			}
			c.renderPoint(values)
			return nil
		},
	}
	cmd.Flags().IntVar(&row, "row", 0, "pixel row")
	cmd.Flags().IntVar(&col, "col", 0, "pixel column")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the values as JSON keyed by band then date")
	return cmd
}

// renderPoint prints one row per date and one column per band
func (c *CLI) renderPoint(values map[string]map[string]*float64) {
	bands := make([]string, 0, len(values))
	dateSet := make(map[string]struct{})
	for band, byDate := range values {
		bands = append(bands, band)
		for d := range byDate {
			dateSet[d] = struct{}{}
		}
	}
	sort.Strings(bands)
	dates := make([]string, 0, len(dateSet))
	for d := range dateSet {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	t := table.NewWriter()
	t.SetOutputMirror(c.output)
	t.SetStyle(table.StyleLight)
	header := table.Row{"Date"}
	for _, b := range bands {
		header = append(header, b)
	}
	t.AppendHeader(header)
	for _, d := range dates {
		r := table.Row{d}
		for _, b := range bands {
			v, ok := values[b][d]
			if !ok || v == nil {
				r = append(r, "-")
				continue
			}
			r = append(r, fmt.Sprintf("%.4f", *v))
		}
		t.AppendRow(r)
	}
	t.Render()
}

// renderCollection prints the valid pixel count and mean of each band
func (c *CLI) renderCollection(coll *raster.Collection) {
	t := table.NewWriter()
	t.SetOutputMirror(c.output)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Image", "Band", "Valid", "Mean"})
	for _, img := range coll.Images {
		for _, b := range img.Bands() {
			t.AppendRow(table.Row{img.Props.Index, b.Name, b.ValidCount(), formatMean(b)})
		}
	}
	t.Render()
}

// renderClear prints the clear pixel share of each masked scene
func (c *CLI) renderClear(before, after *raster.Collection) {
	t := table.NewWriter()
	t.SetOutputMirror(c.output)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Scene", "Clear", "Pixels"})
	for i, img := range after.Images {
		first, err := img.First()
		if err != nil {
			continue
		}
		orig, err := before.Images[i].First()
		if err != nil {
			continue
		}
		total := orig.ValidCount()
		pct := 0.0
		if total > 0 {
			pct = 100 * float64(first.ValidCount()) / float64(total)
		}
		t.AppendRow(table.Row{img.Props.SceneID, fmt.Sprintf("%.1f%%", pct), total})
	}
	t.Render()
}

func formatMean(b *raster.Band) string {
	sum, n := 0.0, 0
	for i := 0; i < b.Len(); i++ {
		if b.IsValid(i) {
			sum += b.Data[i]
			n++
		}
	}
	if n == 0 {
		return "-"
	}
	mean := sum / float64(n)
	if math.IsNaN(mean) {
		return "-"
	}
	return fmt.Sprintf("%.4f", mean)
}
