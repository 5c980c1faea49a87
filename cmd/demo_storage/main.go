package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/zhukovaskychina/xstorage/conf"
	"github.com/zhukovaskychina/xstorage/engine/basic"
	"github.com/zhukovaskychina/xstorage/engine/buffer_pool"
	"github.com/zhukovaskychina/xstorage/engine/index"
	"github.com/zhukovaskychina/xstorage/engine/store"
	"github.com/zhukovaskychina/xstorage/logger"
)

func main() {
	configPath := flag.String("config", "", "path to ini config file")
	flag.Parse()

	cfg, err := conf.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := logger.InitLogger(logger.LogConfig{LogPath: cfg.LogPath, LogLevel: cfg.LogLevel}); err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create data dir: %v\n", err)
		os.Exit(1)
	}
	dm, err := store.NewFileDiskManager(cfg.DataFilePath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open data file: %v\n", err)
		os.Exit(1)
	}
	defer dm.Close()

	bpm := buffer_pool.NewBufferPoolManager(cfg.BufferPoolPages, cfg.ReplacerK, dm)
	tree := index.NewBPlusTree("demo_index", bpm, index.CompareKeys, index.Int64KeySize, 0, 0)

	fmt.Println("=== xstorage demo ===")

	fmt.Println("\n1. Inserting keys 1..1000...")
	for i := int64(1); i <= 1000; i++ {
		tree.Insert(index.Int64Key(i), basic.NewRID(basic.PageID(i), uint32(i)), nil)
	}

	fmt.Println("2. Point lookups...")
	for _, k := range []int64{1, 500, 1000} {
		rids := tree.GetValue(index.Int64Key(k))
		fmt.Printf("   key %d -> %v\n", k, rids)
	}

	fmt.Println("3. Range scan from 990...")
	for it := tree.BeginAt(index.Int64Key(990)); !it.IsEnd(); it.Next() {
		fmt.Printf("   %d -> %s\n", index.Int64FromKey(it.Key()), it.Value())
	}

	fmt.Println("4. Removing odd keys...")
	for i := int64(1); i <= 1000; i += 2 {
		tree.Remove(index.Int64Key(i), nil)
	}
	fmt.Printf("   key 1 now -> %v\n", tree.GetValue(index.Int64Key(1)))
	fmt.Printf("   key 2 now -> %v\n", tree.GetValue(index.Int64Key(2)))

	bpm.FlushAllPages()
	fmt.Printf("\nbuffer pool stats: %v, hit ratio %.2f\n", bpm.Stats(), bpm.HitRatio())
	fmt.Println("=== done ===")
}
