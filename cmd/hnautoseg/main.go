package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"hnautoseg/internal/logging"
	"hnautoseg/pkg/config"
	"hnautoseg/pkg/pipeline"
	"hnautoseg/pkg/prediction"
	"hnautoseg/pkg/storage"
)

func main() {
	// Parse command line arguments
	inputDir := flag.String("input", "", "Directory containing the CT images of one case")
	predDir := flag.String("predictions", "", "Directory containing <Organ>.npy probability volumes (default: prediction.dir from config)")
	caseID := flag.String("case", "", "Case identifier used in the output filename (default: input directory name)")
	configPath := flag.String("config", "config.yaml", "Path to the YAML configuration file")
	outputDir := flag.String("output", "", "Output directory (default: output.dir from config)")
	organs := flag.String("organs", "", "Comma separated organs to contour (default: all)")
	preview := flag.Bool("preview", false, "Render PNG overlays of the generated contours")
	initConfig := flag.String("init-config", "", "Write a default configuration file to this path and exit")
	flag.Parse()

	if *initConfig != "" {
		if err := config.CreateDefaultConfigFile(*initConfig); err != nil {
			log.Fatalf("Failed to write config: %v", err)
		}
		fmt.Printf("Default configuration written to %s\n", *initConfig)
		return
	}

	// Validate inputs
	if *inputDir == "" {
		flag.Usage()
		os.Exit(1)
	}

	// A missing .env file is fine
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	cfg.ApplyEnv(os.LookupEnv)
	if *outputDir != "" {
		cfg.Output.Dir = *outputDir
	}
	if *predDir != "" {
		cfg.Prediction.Dir = *predDir
	}
	if *organs != "" {
		cfg.Processing.Organs = strings.Split(*organs, ",")
	}
	if *preview {
		cfg.Output.Preview = true
	}
	if *caseID == "" {
		*caseID = filepath.Base(filepath.Clean(*inputDir))
	}

	logger := logging.NewLogger(cfg.Logging.Env)
	defer logger.Sync()

	store, err := newStore(cfg, logger)
	if err != nil {
		logger.Fatal("failed to open output store", zap.Error(err))
	}

	p, err := pipeline.New(cfg, prediction.NPYSource{Dir: cfg.Prediction.Dir}, store, logger)
	if err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Println("================================")
	fmt.Println("HEAD AND NECK AUTO-CONTOURING")
	fmt.Println("================================")

	res, err := p.Generate(ctx, *inputDir, *caseID)
	if err != nil {
		logger.Fatal("structure set generation failed", zap.String("case", *caseID), zap.Error(err))
	}

	fmt.Printf("\nStructure set completed in %.2f seconds!\n", res.Duration.Seconds())
	fmt.Printf("Output saved to: %s\n\n", res.OutputPath)
	fmt.Printf("%-18s %s\n", "ROI", "Contours")
	for _, roi := range res.ROIs {
		fmt.Printf("%-18s %d\n", roi.Label, roi.Contours)
	}
	fmt.Printf("\nSlices: %d, skipped files: %d invalid, %d not CT\n", res.Slices, res.Invalid, res.NonCT)
	if len(res.Previews) > 0 {
		fmt.Printf("Previews saved to: %s\n", filepath.Dir(res.Previews[0]))
	}
}

func newStore(cfg *config.Config, logger *zap.Logger) (storage.Store, error) {
	m := cfg.Output.MinIO
	if !m.Enabled {
		return storage.NewFileStore(cfg.Output.Dir, logger.Named("store")), nil
	}
	return storage.NewMinIOStore(storage.MinIOConfig{
		Endpoint:  m.Endpoint,
		AccessKey: m.AccessKey,
		SecretKey: m.SecretKey,
		Bucket:    m.Bucket,
		Prefix:    m.Prefix,
		UseSSL:    m.UseSSL,
	}, logger.Named("store"))
}
