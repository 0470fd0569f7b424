package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"hnautoseg/internal/logging"
	"hnautoseg/pkg/config"
	"hnautoseg/pkg/contour"
	"hnautoseg/pkg/evaluation"
	"hnautoseg/pkg/geometry"
	"hnautoseg/pkg/metrics"
	"hnautoseg/pkg/rtstruct"
)

func main() {
	truthPath := flag.String("truth", "", "Reference structure set")
	predPath := flag.String("pred", "", "Structure set to evaluate")
	ctDir := flag.String("ct", "", "CT directory defining the slice heights (default: heights found in both structure sets)")
	configPath := flag.String("config", "config.yaml", "Path to the YAML configuration file")
	organs := flag.String("organs", "", "Comma separated organs to compare (default: all)")
	method := flag.String("method", "", "Nearest surface search: box or kdtree (default: metrics.method from config)")
	flag.Parse()

	if *truthPath == "" || *predPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	_ = godotenv.Load()
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	cfg.ApplyEnv(os.LookupEnv)
	if *organs != "" {
		cfg.Processing.Organs = strings.Split(*organs, ",")
	}
	if *method != "" {
		cfg.Metrics.Method = *method
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger := logging.NewLogger(cfg.Logging.Env)
	defer logger.Sync()

	truth, err := rtstruct.ReadFile(*truthPath)
	if err != nil {
		logger.Fatal("failed to read reference", zap.String("path", *truthPath), zap.Error(err))
	}
	pred, err := rtstruct.ReadFile(*predPath)
	if err != nil {
		logger.Fatal("failed to read prediction", zap.String("path", *predPath), zap.Error(err))
	}
	if truth.FrameOfReferenceUID != pred.FrameOfReferenceUID {
		logger.Warn("structure sets use different frames of reference",
			zap.String("truth", truth.FrameOfReferenceUID),
			zap.String("pred", pred.FrameOfReferenceUID))
	}

	var heights []float64
	if *ctDir != "" {
		heights, err = ctHeights(*ctDir, cfg, logger)
		if err != nil {
			logger.Fatal("failed to read CT heights", zap.Error(err))
		}
	}

	searcher, err := metrics.NewSearcher(cfg.Metrics.Method, cfg.Metrics.SearchRadius)
	if err != nil {
		logger.Fatal("invalid search method", zap.Error(err))
	}
	table, _ := cfg.OrganTable()
	kinds, _ := cfg.OrganKinds()

	rows, err := evaluation.Compare(truth, pred, heights, evaluation.Options{
		ImageSize: cfg.Processing.ImageSize,
		PixelSize: cfg.Processing.PixelSize,
		Precision: cfg.Processing.HeightPrecision,
		Organs:    table,
		Kinds:     kinds,
		Metrics: metrics.Options{
			PixelSize:      cfg.Metrics.PixelSize,
			SliceThickness: cfg.Metrics.SliceThickness,
			Percentile:     cfg.Metrics.Percentile,
			Tracer:         contour.SuzukiTracer{},
			Searcher:       searcher,
		},
		NumWorkers: cfg.Processing.NumWorkers,
	})
	if err != nil {
		logger.Fatal("evaluation failed", zap.Error(err))
	}

	fmt.Printf("%-16s %7s %7s %7s %8s %8s  %s\n", "ROI", "Dice", "Sens", "Spec", "MSD", fmt.Sprintf("HD%g", cfg.Metrics.Percentile), "Note")
	for _, r := range rows {
		note := ""
		if r.Missing != "" {
			note = "missing in " + r.Missing
		}
		fmt.Printf("%-16s %7s %7s %7s %8.2f %8.2f  %s\n",
			r.Organ, num(r.Dice), num(r.Sensitivity), num(r.Specificity), r.MSD, r.HD, note)
	}
}

func num(v float64) string {
	if math.IsNaN(v) {
		return "-"
	}
	return fmt.Sprintf("%.3f", v)
}

// ctHeights normalizes the CT series and returns its slice heights, so both
// sets are rasterized on the grid the model saw.
func ctHeights(dir string, cfg *config.Config, logger *zap.Logger) ([]float64, error) {
	series, err := geometry.NewLoader(logger.Named("loader")).LoadDir(context.Background(), dir)
	if err != nil {
		return nil, err
	}
	p := cfg.Processing
	norm, err := geometry.NewNormalizer(p.ImageSize, p.PixelSize, p.HeightPrecision).Normalize(series.Slices)
	if err != nil {
		return nil, err
	}
	return norm.Heights, nil
}
