package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/thejerf/suture/v4"
	"golang.org/x/time/rate"

	"github.com/hitoshi/myanimebot/internal/anilist"
	"github.com/hitoshi/myanimebot/internal/command"
	"github.com/hitoshi/myanimebot/internal/config"
	"github.com/hitoshi/myanimebot/internal/database"
	"github.com/hitoshi/myanimebot/internal/discord"
	"github.com/hitoshi/myanimebot/internal/handler"
	"github.com/hitoshi/myanimebot/internal/logger"
	"github.com/hitoshi/myanimebot/internal/mal"
	"github.com/hitoshi/myanimebot/internal/metrics"
	"github.com/hitoshi/myanimebot/internal/middleware"
	"github.com/hitoshi/myanimebot/internal/publish"
	"github.com/hitoshi/myanimebot/internal/repository"
	"github.com/hitoshi/myanimebot/internal/security"
	"github.com/hitoshi/myanimebot/internal/supervisor"
	"github.com/hitoshi/myanimebot/internal/thumbnail"
	"github.com/hitoshi/myanimebot/internal/upstream"
	"github.com/hitoshi/myanimebot/internal/worker/cleanup"
	"github.com/hitoshi/myanimebot/internal/worker/reconcile"
	"github.com/hitoshi/myanimebot/internal/worker/refresh"
)

// defaultHealthPort はhealthcheckサブコマンドが接続する既定のポート。
const defaultHealthPort = "15200"

// Init はアプリケーションの初期化を行う。
// .envと環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. .envファイルと環境変数から設定を読み込む
	if err := config.LoadDotEnv(); err != nil {
		return nil, err
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルで再初期化する
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("PORT")
		if port == "" {
			port = defaultHealthPort
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("version", config.Version),
		slog.String("port", cfg.ServerPort),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandWorker:
		return runBot(cfg, false)
	default:
		return runBot(cfg, true)
	}
}

// runBot はsupervisorツリーを構築して起動する。
// withGateway が true の場合はDiscordゲートウェイに接続し、チャットコマンドとプレゼンスも扱う。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runBot(cfg *config.Config, withGateway bool) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. Discordセッション（REST配信はゲートウェイ接続なしでも利用できる）
	session, err := discord.NewSession(cfg.DiscordToken)
	if err != nil {
		return err
	}

	// 3. メトリクスレジストリ
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	svcs, err := buildServices(cfg, db, session, reg, slog.Default(), withGateway)
	if err != nil {
		return err
	}
	defer svcs.close()

	// 4. supervisorツリーの構築
	tree := supervisor.NewTree(slog.Default(), supervisor.DefaultTreeConfig())
	for _, s := range svcs.workers {
		tree.AddWorker(s)
	}
	for _, s := range svcs.gateway {
		tree.AddGateway(s)
	}
	for _, s := range svcs.api {
		tree.AddAPI(s)
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("bot starting",
		slog.Bool("gateway", withGateway),
		slog.Bool("mal_enabled", cfg.MALEnabled),
		slog.Bool("anilist_enabled", cfg.AniListEnabled),
	)

	if err := tree.Serve(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("supervisor stopped unexpectedly: %w", err)
	}

	slog.Info("bot stopped gracefully")
	return nil
}

// services はsupervisorツリーの各層に追加するサービスの一覧。
type services struct {
	workers []suture.Service
	gateway []suture.Service
	api     []suture.Service
	closers []func()
}

func (s *services) close() {
	for _, c := range s.closers {
		c()
	}
}

// buildServices は全依存関係をワイヤリングし、supervisorに登録するサービスを返す。
func buildServices(cfg *config.Config, db *sqlx.DB, session *discordgo.Session, reg *prometheus.Registry, log *slog.Logger, withGateway bool) (*services, error) {
	svcs := &services{}

	// 1. リポジトリの初期化
	feedRepo := repository.NewSQLFeedRepo(db)
	mediaRepo := repository.NewSQLMediaRepo(db)
	subscriberRepo := repository.NewSQLSubscriberRepo(db)
	serverRepo := repository.NewSQLServerRepo(db)
	statsRepo := repository.NewSQLStatsRepo(db)

	// 2. セキュリティ・メトリクス
	guard := security.NewURLGuard("myanimelist.net")
	sanitizer := security.NewTextSanitizer()
	collector := metrics.NewCollector(reg)

	// 3. 上流クライアント
	httpClient := &http.Client{Timeout: cfg.FetchTimeout}
	malClient := mal.NewClient(httpClient, config.UserAgent,
		upstream.NewBreaker("mal", upstream.DefaultBreakerSettings(), collector, log), log)
	anilistClient := anilist.NewClient(httpClient, config.UserAgent,
		upstream.NewBreaker("anilist", upstream.DefaultBreakerSettings(), collector, log), log, cfg.AniListPageSize)
	resolver := thumbnail.NewResolver(guard, cfg.FetchTimeout, config.UserAgent, log)

	// 4. 配信
	icons := iconsFromConfig(cfg)
	deliverer := discord.NewDeliverer(session, icons)
	sink := publish.NewSink(serverRepo, deliverer, collector, log)

	// 5. 照合エンジンとポーラー
	engineCfg := reconcile.Config{FreshnessWindow: cfg.FreshnessWindow}
	if cfg.MALEnabled {
		engine := reconcile.NewEngine(reconcile.Deps[mal.Entry]{
			Fetcher:     malClient,
			Builder:     mal.NewBuilder(sanitizer),
			Feeds:       feedRepo,
			Media:       mediaRepo,
			Subscribers: subscriberRepo,
			Thumbnails:  resolver,
			Publisher:   sink,
			Pacer:       rate.NewLimiter(rate.Every(cfg.MALRequestInterval), 1),
			Metrics:     collector,
			Logger:      log,
		}, engineCfg)
		svcs.workers = append(svcs.workers, reconcile.NewPoller("mal-poller", engine, cfg.MALCycleInterval, log))
	}
	if cfg.AniListEnabled {
		engine := reconcile.NewEngine(reconcile.Deps[anilist.Activity]{
			Fetcher:     anilistClient,
			Builder:     anilist.NewBuilder(sanitizer),
			Feeds:       feedRepo,
			Media:       mediaRepo,
			Subscribers: subscriberRepo,
			Thumbnails:  resolver,
			Publisher:   sink,
			Pacer:       rate.NewLimiter(rate.Every(cfg.AniListPageInterval), 1),
			Metrics:     collector,
			Logger:      log,
		}, engineCfg)
		svcs.workers = append(svcs.workers, reconcile.NewPoller("anilist-poller", engine, cfg.AniListCycleInterval, log))
	}

	// 6. 定期ジョブ
	svcs.workers = append(svcs.workers,
		refresh.NewJob(mediaRepo, resolver, log, refresh.Config{
			Interval:      cfg.ThumbnailRefreshInterval,
			CheckInterval: cfg.ThumbnailCheckInterval,
			MaxPerCycle:   cfg.ThumbnailMaxPerCycle,
		}),
		cleanup.NewCleanupJob(feedRepo, cfg.FeedRetentionDays, log),
	)

	// 7. Discordゲートウェイ（runモードのみ）
	if withGateway {
		limiter := middleware.NewRateLimiter(middleware.CommandRateLimiterConfig(cfg.CommandRateLimit), log)
		svcs.closers = append(svcs.closers, limiter.Stop)

		router := command.NewRouter(command.Deps{
			Servers:     serverRepo,
			Subscribers: subscriberRepo,
			Stats:       statsRepo,
			MAL:         malClient,
			AniList:     anilistClient,
			Directory:   discord.NewDirectory(session),
			Limiter:     limiter,
			Metrics:     collector,
			Logger:      log,
		}, command.Config{
			Prefix:  cfg.CommandPrefix,
			Version: config.Version,
			BotIcon: icons.Bot,
		})

		svcs.gateway = append(svcs.gateway,
			discord.NewBot(session, router, log),
			discord.NewPresence(mediaRepo, session, cfg.PresenceInterval, log),
		)
	}

	// 8. ヘルスチェック・メトリクスのHTTPサーバー
	httpHandler := handler.NewRouter(&handler.RouterDeps{
		HealthChecker: db,
		Version:       config.Version,
		Metrics:       metrics.Handler(reg),
		Logger:        log,
	})
	svcs.api = append(svcs.api, handler.NewServer(cfg.ServerPort, httpHandler, log))

	return svcs, nil
}

// iconsFromConfig は設定されたアイコンURLで既定値を上書きする。
func iconsFromConfig(cfg *config.Config) discord.Icons {
	icons := discord.DefaultIcons()
	if cfg.IconBot != "" {
		icons.Bot = cfg.IconBot
	}
	if cfg.IconMAL != "" {
		icons.MAL = cfg.IconMAL
	}
	if cfg.IconAniList != "" {
		icons.AniList = cfg.IconAniList
	}
	return icons
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
// SQLiteのURLは認証情報を含まないためそのまま返す。
func maskDatabaseURL(url string) string {
	if driver, _, err := database.ParseURL(url); err == nil && driver == database.DriverSQLite {
		return url
	}
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
