// speak 是 ttshub 的命令行客户端：请求流式合成接口并边收边播，
// 也可以把音频保存为 WAV 文件。
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/iabetor/ttshub/internal/audio"
)

func main() {
	serverURL := flag.String("server", "http://localhost:8879", "ttshub 服务地址")
	voice := flag.String("voice", "", "音色名")
	lang := flag.String("lang", "", "语言代码, 如 en-us")
	speed := flag.Float64("speed", 0, "语速倍率")
	engine := flag.String("engine", "", "指定引擎 id, 默认自动选路")
	output := flag.String("o", "", "保存为 WAV 文件而不播放")
	flag.Parse()

	text := strings.Join(flag.Args(), " ")
	if strings.TrimSpace(text) == "" {
		fmt.Fprintln(os.Stderr, "用法: speak [选项] <文本>")
		flag.PrintDefaults()
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := run(ctx, *serverURL, text, *voice, *lang, float32(*speed), *engine, *output); err != nil {
		fmt.Fprintf(os.Stderr, "speak: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, server, text, voice, lang string, speed float32, engine, output string) error {
	q := url.Values{}
	q.Set("text", text)
	if voice != "" {
		q.Set("voice", voice)
	}
	if lang != "" {
		q.Set("lang", lang)
	}
	if speed > 0 {
		q.Set("speed", strconv.FormatFloat(float64(speed), 'f', 2, 32))
	}
	if engine != "" {
		q.Set("engine", engine)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		server+"/api/tts/stream?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("服务返回 %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	if output != "" {
		return save(resp.Body, output)
	}
	return play(ctx, resp.Body)
}

// save 把完整响应落盘，并把流式头部改写成带准确长度的头部。
func save(body io.Reader, path string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("读取音频失败: %w", err)
	}
	samples, rate, err := audio.DecodeWAV(data)
	if err != nil {
		return fmt.Errorf("解析音频失败: %w", err)
	}
	if err := os.WriteFile(path, audio.EncodeWAV(samples, rate), 0644); err != nil {
		return fmt.Errorf("写文件失败: %w", err)
	}
	fmt.Printf("已保存: %s (%v)\n", path, audio.Duration(len(samples), rate))
	return nil
}

// play 边接收边播放。头部之后的 PCM 直接喂给声卡，无需等待整段音频。
func play(ctx context.Context, body io.Reader) error {
	header := make([]byte, 44)
	if _, err := io.ReadFull(body, header); err != nil {
		return fmt.Errorf("读取音频头失败: %w", err)
	}
	rate, err := audio.ParseWAVHeader(header)
	if err != nil {
		return fmt.Errorf("解析音频头失败: %w", err)
	}

	player, err := audio.NewPlayer(1)
	if err != nil {
		return fmt.Errorf("初始化音频设备失败: %w", err)
	}
	defer player.Close()

	return player.PlayReader(ctx, body, rate)
}
