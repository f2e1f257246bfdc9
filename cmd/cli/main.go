package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"memory-outbox/pkg/config"
)

const version = "memq 0.1.0"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stdout)
		return 0
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "version":
		fmt.Fprintln(stdout, version)
	case "health":
		return runHealth(stdout, stderr)
	case "config":
		return runConfig(stdout, stderr)
	case "send":
		return runSend(rest, stdout, stderr)
	case "flush":
		return runFlush(stdout, stderr)
	case "reconnect":
		return runReconnect(stdout, stderr)
	case "status":
		return runStatus(stdout, stderr)
	default:
		printUsage(stderr)
		return 1
	}
	return 0
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: memq <command> [args]")
	fmt.Fprintln(w, "  version                 - 显示版本")
	fmt.Fprintln(w, "  health                  - 守护进程健康检查")
	fmt.Fprintln(w, "  config                  - 显示配置概要")
	fmt.Fprintln(w, "  send [flags] <type> <content> - 提交 memory（离线时自动入队）")
	fmt.Fprintln(w, "      -session <id> -user <id> -mission <id> -keywords a,b")
	fmt.Fprintln(w, "  flush                   - 同步重放离线队列")
	fmt.Fprintln(w, "  reconnect               - 通知守护进程网络已恢复")
	fmt.Fprintln(w, "  status                  - 队列长度与最近一次重放结果")
	fmt.Fprintln(w, "守护进程地址取自 MEMQ_API_URL（默认 http://127.0.0.1:7070）")
}

func runConfig(stdout, stderr io.Writer) int {
	cfg, err := config.LoadOutboxConfig()
	if err != nil {
		fmt.Fprintf(stderr, "加载配置失败: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "outbox.base_url=%s\n", cfg.Outbox.BaseURL)
	fmt.Fprintf(stdout, "outbox.cipher=%s\n", cfg.Outbox.Cipher)
	fmt.Fprintf(stdout, "storage.slot.type=%s\n", cfg.Storage.Slot.Type)
	fmt.Fprintf(stdout, "secrets.provider=%s\n", cfg.Secrets.Provider)
	fmt.Fprintf(stdout, "api=%s:%d\n", cfg.API.Host, cfg.API.Port)
	return 0
}

func runHealth(stdout, stderr io.Writer) int {
	out, err := getHealth()
	if err != nil {
		fmt.Fprintf(stderr, "健康检查失败: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, prettyJSON(out))
	return 0
}

func runSend(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("send", flag.ContinueOnError)
	fs.SetOutput(stderr)
	session := fs.String("session", "", "session id")
	user := fs.String("user", "", "user id")
	mission := fs.String("mission", "", "mission id")
	keywords := fs.String("keywords", "", "comma separated keywords")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 2 {
		fmt.Fprintln(stderr, "Usage: memq send [flags] <type> <content>")
		return 1
	}

	req := sendRequest{
		Type:      fs.Arg(0),
		Content:   strings.Join(fs.Args()[1:], " "),
		SessionID: *session,
		UserID:    *user,
		MissionID: *mission,
	}
	if *keywords != "" {
		for _, k := range strings.Split(*keywords, ",") {
			if k = strings.TrimSpace(k); k != "" {
				req.Keywords = append(req.Keywords, k)
			}
		}
	}

	out, err := sendMemory(req)
	if err != nil {
		fmt.Fprintf(stderr, "提交失败: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "%s (version %d)\n", out.Status, out.Version)
	return 0
}

func runFlush(stdout, stderr io.Writer) int {
	n, err := flushOutbox()
	if err != nil {
		fmt.Fprintf(stderr, "重放失败: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "delivered %d\n", n)
	return 0
}

func runReconnect(stdout, stderr io.Writer) int {
	scheduled, err := reconnect()
	if err != nil {
		fmt.Fprintf(stderr, "通知失败: %v\n", err)
		return 1
	}
	if scheduled {
		fmt.Fprintln(stdout, "flush scheduled")
	} else {
		fmt.Fprintln(stdout, "flush already pending")
	}
	return 0
}

func runStatus(stdout, stderr io.Writer) int {
	out, err := getStatus()
	if err != nil {
		fmt.Fprintf(stderr, "查询失败: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, prettyJSON(out))
	return 0
}
