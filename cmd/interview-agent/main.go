package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/config"
	"github.com/spf13/pflag"

	glog "github.com/cloudwego/hertz/pkg/common/hlog"
	hertzadapter "github.com/hertz-contrib/logger/zerolog"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"

	"github.com/JaySingh79/Agentic-Recruiter/internal/api/handler"
	"github.com/JaySingh79/Agentic-Recruiter/internal/api/router"
	appconfig "github.com/JaySingh79/Agentic-Recruiter/internal/config"
	"github.com/JaySingh79/Agentic-Recruiter/internal/embedder"
	"github.com/JaySingh79/Agentic-Recruiter/internal/evaluator"
	"github.com/JaySingh79/Agentic-Recruiter/internal/llm"
	appCoreLogger "github.com/JaySingh79/Agentic-Recruiter/internal/logger"
	"github.com/JaySingh79/Agentic-Recruiter/internal/matcher"
	"github.com/JaySingh79/Agentic-Recruiter/internal/orchestrator"
	"github.com/JaySingh79/Agentic-Recruiter/internal/planner"
	"github.com/JaySingh79/Agentic-Recruiter/internal/question"
	"github.com/JaySingh79/Agentic-Recruiter/internal/session"
	"github.com/JaySingh79/Agentic-Recruiter/internal/storage"
	"github.com/JaySingh79/Agentic-Recruiter/internal/tracing"
)

var (
	serviceName = "agentic-recruiter" //nolint:gochecknoglobals
)

func main() {
	initLogger()

	var configPath string
	pflag.StringVarP(&configPath, "config", "c", "internal/config/config.yaml", "Path to config file")
	pflag.Parse()

	cfg, err := appconfig.LoadConfig(configPath)
	if err != nil {
		glog.Fatalf("加载配置失败: %v", err)
	}
	glog.Info("配置加载成功")

	// 启动期的引导级别被配置覆盖
	logLevel := appCoreLogger.ApplyLevel(cfg.Logger.Level)
	glog.SetLevel(hlogLevel(logLevel))
	glog.Infof("日志级别: %s", logLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 分布式追踪（可选）
	if cfg.Tracing.Enabled {
		shutdownTracer, err := tracing.InitTracerProvider(ctx, serviceName, cfg.Tracing.OTLPEndpoint)
		if err != nil {
			glog.Fatalf("初始化TracerProvider失败: %v", err)
		}
		defer func() {
			shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelShutdown()
			if err := shutdownTracer(shutdownCtx); err != nil {
				glog.Warnf("关闭TracerProvider失败: %v", err)
			}
		}()
		glog.Info("TracerProvider初始化成功")
	}

	storageManager, err := storage.NewStorage(ctx, cfg)
	if err != nil {
		glog.Fatalf("初始化存储失败: %v", err)
	}
	defer storageManager.Close()
	glog.Info("存储服务初始化成功")

	// 会话存储：Redis可用时跨实例共享，否则退化为进程内存
	var sessionStore session.Store
	if storageManager.Redis != nil {
		sessionStore = session.NewRedisStore(storageManager.Redis.Client, storageManager.Redis.SessionTTL(), appCoreLogger.Logger)
		glog.Info("会话存储使用Redis")
	} else {
		sessionStore = session.NewMemoryStore(appCoreLogger.Logger)
		glog.Warn("会话存储退化为进程内存，重启后会话丢失")
	}

	if cfg.Aliyun.APIKey == "" {
		glog.Fatalf("未配置阿里云API Key，无法初始化嵌入与出题能力")
	}

	// 嵌入器：Redis可用时叠加向量缓存
	var emb embedder.Embedder
	aliyunEmbedder, err := embedder.NewAliyunEmbedder(cfg.Aliyun.APIKey, cfg.Aliyun.Embedding, appCoreLogger.Logger)
	if err != nil {
		glog.Fatalf("初始化阿里云Embedder失败: %v", err)
	}
	if storageManager.Redis != nil {
		emb = embedder.NewCachedEmbedder(aliyunEmbedder, storageManager.Redis, appCoreLogger.Logger)
		glog.Info("阿里云Embedder初始化成功（带Redis向量缓存）")
	} else {
		emb = aliyunEmbedder
		glog.Info("阿里云Embedder初始化成功")
	}

	// 外部生成能力
	chatModel, err := llm.NewQwenChatModel(
		cfg.Aliyun.APIKey, cfg.Aliyun.Model, cfg.Aliyun.APIURL, appCoreLogger.Logger,
		llm.WithTemperature(cfg.Generation.Temperature),
		llm.WithMaxTokens(cfg.Generation.MaxTokens),
	)
	if err != nil {
		glog.Fatalf("初始化Qwen聊天模型失败: %v", err)
	}
	glog.Info("Qwen聊天模型初始化成功")

	// 评估策略：judge走LLM裁判，heuristic走本地启发式；
	// judge模式下启发式兜底，裁判连续失败时仍能给出分数
	heuristic := evaluator.NewHeuristicStrategy(emb, appCoreLogger.Logger)
	var strategy, fallback evaluator.Strategy
	switch cfg.Evaluator.Strategy {
	case "heuristic":
		strategy = heuristic
		fallback = nil
		glog.Info("评估策略: heuristic")
	default:
		strategy = evaluator.NewJudgeStrategy(chatModel, cfg.Generation, appCoreLogger.Logger)
		fallback = heuristic
		glog.Info("评估策略: judge (启发式兜底)")
	}

	matchEngine := matcher.NewEngine(emb, appCoreLogger.Logger)
	interviewPlanner := planner.NewPlanner(cfg.Interview, appCoreLogger.Logger)
	requester := question.NewRequester(chatModel, cfg.Generation, appCoreLogger.Logger)
	eval := evaluator.NewEvaluator(strategy, fallback, cfg.Evaluator, appCoreLogger.Logger)
	hooks := storage.NewLifecycleRecorder(storageManager, &cfg.RabbitMQ, appCoreLogger.Logger)

	o := orchestrator.NewOrchestrator(
		matchEngine, interviewPlanner, requester, eval,
		sessionStore, hooks, cfg.Interview, appCoreLogger.Logger,
	)
	glog.Info("面试编排器初始化成功")

	interviewHandler := handler.NewInterviewHandler(cfg, o, appCoreLogger.Logger)

	serverOpts := []config.Option{
		server.WithHostPorts(cfg.Server.Address),
		server.WithHandleMethodNotAllowed(true),
	}
	var tracerCfg *hertztracing.Config
	if cfg.Tracing.Enabled {
		tracer, tcfg := hertztracing.NewServerTracer()
		serverOpts = append(serverOpts, tracer)
		tracerCfg = tcfg
	}

	h := server.New(serverOpts...)
	if tracerCfg != nil {
		h.Use(hertztracing.ServerMiddleware(tracerCfg))
	}
	h.Use(func(c context.Context, ctx *app.RequestContext) {
		glog.CtxInfof(c, "Request: %s %s", string(ctx.Method()), string(ctx.Path()))
		ctx.Next(c)
		glog.CtxInfof(c, "Response: status %d", ctx.Response.StatusCode())
	})

	router.RegisterRoutes(h, interviewHandler, cfg.Server.ExportAPIKey)
	glog.Info("HTTP路由注册成功")

	glog.Infof("HTTP 服务器启动中，监听地址: %s", cfg.Server.Address)

	go func() {
		if err := h.Run(); err != nil {
			glog.Fatalf("启动HTTP服务器失败: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	glog.Info("接收到终止信号，正在优雅退出...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := h.Shutdown(shutdownCtx); err != nil {
		glog.Fatalf("服务器关闭失败: %v", err)
	}
	glog.Info("优雅退出完成")
}

func initLogger() {
	consoleWriter := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "15:04:05",
	}

	multiWriter := zerolog.MultiLevelWriter(consoleWriter)
	if fileWriter, err := os.OpenFile("logs/app.log", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644); err == nil {
		multiWriter = zerolog.MultiLevelWriter(consoleWriter, fileWriter)
	}

	// 配置加载前的引导级别，LoadConfig之后按 cfg.Logger 重设
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	zerolog.TimeFieldFormat = "15:04:05"

	logger := zerolog.New(multiWriter).With().Timestamp().Caller().Logger()

	appCoreLogger.Logger = logger
	zlog.Logger = logger

	hertzCompatibleLogger := hertzadapter.From(appCoreLogger.Logger)
	glog.SetLogger(hertzCompatibleLogger)
	glog.SetLevel(glog.LevelInfo)
}

// hlogLevel 将zerolog级别换算为Hertz日志级别
func hlogLevel(level zerolog.Level) glog.Level {
	switch {
	case level <= zerolog.DebugLevel:
		return glog.LevelDebug
	case level == zerolog.InfoLevel:
		return glog.LevelInfo
	case level == zerolog.WarnLevel:
		return glog.LevelWarn
	default:
		return glog.LevelError
	}
}
