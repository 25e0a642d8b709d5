package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/taoyao-code/gaia-upgrader/internal/app/bootstrap"
	cfgpkg "github.com/taoyao-code/gaia-upgrader/internal/config"
	"github.com/taoyao-code/gaia-upgrader/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "配置文件路径，默认读取 GAIA_CONFIG 或 configs/example.yaml")
	file := flag.String("file", "", "固件镜像，覆盖 upgrade.file")
	autoConfirm := flag.Bool("yes", false, "自动确认全部决策")
	flag.Parse()

	// 1) 加载配置
	cfg, err := cfgpkg.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(2)
	}
	if *file != "" {
		cfg.Upgrade.File = *file
	}
	if *autoConfirm {
		cfg.Upgrade.AutoConfirm = true
	}
	if cfg.Upgrade.File == "" {
		flag.PrintDefaults()
		fmt.Fprintln(os.Stderr, "firmware image is required (-file or upgrade.file)")
		os.Exit(2)
	}

	// 2) 初始化日志
	logger, err := logging.InitLogger(cfg.Logging)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	// 3) 运行升级
	if err := bootstrap.Run(cfg, zap.L()); err != nil {
		zap.L().Error("upgrade did not complete", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}
