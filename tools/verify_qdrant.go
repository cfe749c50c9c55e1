package main

import (
	"context"
	"fmt"
	"globekeys/internal/analyzer"
	"globekeys/internal/config"
	"globekeys/internal/qdrant"
	"globekeys/internal/utils"
	"os"

	qdrantpb "github.com/qdrant/go-client/qdrant"
)

// Prints how many messages of each locale the project's collection holds.
func main() {
	if err := config.LoadFromUserConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
	}

	root := "."
	if len(os.Args) > 1 {
		root = os.Args[1]
	}
	projectID, err := utils.ComputeProjectID(root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to compute project id: %v\n", err)
		os.Exit(1)
	}

	qc, err := qdrant.NewClient()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create qdrant client: %v\n", err)
		os.Exit(1)
	}
	defer qc.Close()

	ctx := context.Background()
	collectionName := analyzer.CollectionName(projectID)
	perLocale := make(map[string]int)
	var totalPoints int
	var offset *qdrantpb.PointId
	limit := uint32(100)

	fmt.Printf("Checking collection: %s\n", collectionName)

	for {
		points, nextOffset, err := qc.Scroll(ctx, collectionName, limit, offset)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error scrolling: %v\n", err)
			break
		}

		totalPoints += len(points)
		for _, p := range points {
			if locale, ok := qdrant.PayloadToMap(p.Payload)["locale"].(string); ok {
				perLocale[locale]++
			}
		}

		if nextOffset == nil || len(points) == 0 {
			break
		}
		offset = nextOffset
	}

	for locale, n := range perLocale {
		fmt.Printf("  %s: %d messages\n", locale, n)
	}
	fmt.Printf("\n✓ Total points in collection: %d\n", totalPoints)
}
