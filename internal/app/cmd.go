package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandRun はゲートウェイ・ポーラー・定期ジョブ・HTTPサーバーをすべて起動することを示す。
	CommandRun Command = "run"
	// CommandWorker はゲートウェイに接続せず、ポーラーと定期ジョブのみを起動することを示す。
	// 通知はREST APIで送信し、チャットコマンドは処理しない。
	CommandWorker Command = "worker"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandRunを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandRun
	}

	switch args[0] {
	case "worker":
		return CommandWorker
	case "run":
		return CommandRun
	case "migrate":
		return CommandMigrate
	case "healthcheck":
		return CommandHealthcheck
	default:
		return CommandRun
	}
}
