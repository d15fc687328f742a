package pallium_test

import (
	"context"
	"fmt"
	"os"

	"github.com/pallium-ai/pallium"
)

func Example() {
	cfg := pallium.DefaultConfig()
	cfg.BoostStrength = 0 // stationary stream, no need to rotate columns
	detector, err := pallium.New(cfg)
	if err != nil {
		panic(err)
	}

	// Feed a repeating pattern so the detector learns it.
	pattern := make([]byte, cfg.InputSize)
	for i := 0; i < 40; i++ {
		pattern[i*50] = 1
	}
	var score float64
	for step := 0; step < 100; step++ {
		score, err = detector.Compute(pattern, true)
		if err != nil {
			panic(err)
		}
	}

	fmt.Printf("learned pattern score: %.1f\n", score)
	// Output: learned pattern score: 0.0
}

func ExampleDetector_Classify() {
	detector, err := pallium.New(pallium.DefaultConfig())
	if err != nil {
		panic(err)
	}

	c := detector.Classify(0.95)
	fmt.Printf("anomalous=%v severity=%s\n", c.Anomalous, c.Severity)
	// Output: anomalous=true severity=critical
}

func ExampleDetector_Snapshot() {
	detector, err := pallium.New(pallium.DefaultConfig())
	if err != nil {
		panic(err)
	}

	dir, _ := os.MkdirTemp("", "pallium-example-*")
	defer os.RemoveAll(dir)

	data, err := detector.Snapshot()
	if err != nil {
		panic(err)
	}

	store, err := pallium.NewFileStore(dir)
	if err != nil {
		panic(err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.Save(ctx, "baseline", data); err != nil {
		panic(err)
	}

	names, _ := store.List(ctx)
	fmt.Println(names)
	// Output: [baseline]
}
