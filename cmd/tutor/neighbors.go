package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sky-flux/tutor/neighbors"
)

func newNeighborsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "neighbors",
		Short: "Build and publish item similarity tables",
	}
	cmd.AddCommand(newNeighborsBuildCmd(a), newNeighborsPublishCmd(a))
	return cmd
}

func newNeighborsBuildCmd(a *app) *cobra.Command {
	var (
		embeddingsPath string
		outPath        string
		topK           int
	)
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Compute nearest neighbors from item embeddings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(); err != nil {
				return err
			}
			embs, err := neighbors.LoadEmbeddings(embeddingsPath)
			if err != nil {
				return err
			}
			if topK == 0 {
				topK = a.cfg.Neighbors.TopK
			}
			ix, err := neighbors.Build(cmd.Context(), embs, topK)
			if err != nil {
				return err
			}
			if err := ix.Save(outPath); err != nil {
				return err
			}
			a.logger.Info("neighbors built", zap.Int("items", ix.Len()), zap.String("out", outPath))
			fmt.Fprintf(cmd.OutOrStdout(), "%d items written to %s\n", ix.Len(), outPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&embeddingsPath, "embeddings", "embeddings.jsonl", "embeddings file, one {\"id\",\"vector\"} per line")
	cmd.Flags().StringVarP(&outPath, "out", "o", "neighbors.jsonl", "output neighbor file")
	cmd.Flags().IntVar(&topK, "top-k", 0, "neighbors kept per item (default from config)")
	return cmd
}

func newNeighborsPublishCmd(a *app) *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Copy a neighbor file into Redis",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(); err != nil {
				return err
			}
			if a.cfg.Neighbors.RedisURL == "" {
				return fmt.Errorf("no Redis configured: set neighbors.redis_url or TUTOR_REDIS_URL")
			}
			ix, err := neighbors.LoadIndex(path, a.cfg.Neighbors.TopK)
			if err != nil {
				return err
			}
			src, err := a.redisSource(cmd.Context())
			if err != nil {
				return err
			}
			n, err := src.Publish(cmd.Context(), ix)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d items published\n", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "file", "neighbors.jsonl", "neighbor file to publish")
	return cmd
}
