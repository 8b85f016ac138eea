package synth

import "unicode"

// DefaultMaxChunkLen 是未配置时的切分单元长度上限（rune 数）。
// 更小的值能降低首块音频延迟，但每次推理的固定开销被支付得更频繁，
// 具体取值按部署环境在配置中给出。
const DefaultMaxChunkLen = 200

// sentenceEnders 切分优先使用的句末标点（中英文）。
var sentenceEnders = map[rune]bool{
	'.': true, '!': true, '?': true, ';': true,
	'。': true, '！': true, '？': true, '；': true,
	'…': true, '\n': true,
}

// Split 将文本切分为合成单元。
// 切分优先落在不超过 maxLen 的最靠后句末标点之后；窗口内没有标点时
// 退而在空白处切分；单个超长 token 则在恰好 maxLen 处硬切。
// 单元开头保留前导空白，保证所有单元按序拼接与原文完全一致；
// 长度限制按去除前导空白后的内容计算。
// 纯函数：相同输入产生相同切分，可重复调用。
func Split(text string, maxLen int) []string {
	if maxLen <= 0 {
		maxLen = DefaultMaxChunkLen
	}

	runes := []rune(text)
	var units []string

	i := 0
	for i < len(runes) {
		start := i

		// 前导空白归入本单元前缀
		j := i
		for j < len(runes) && unicode.IsSpace(runes[j]) {
			j++
		}
		if j == len(runes) {
			// 只剩空白：并入上一个单元，保持拼接一致性
			if len(units) > 0 {
				units[len(units)-1] += string(runes[start:])
			}
			break
		}

		// 内容窗口 [j, end)，最多 maxLen 个 rune
		end := j + maxLen
		if end >= len(runes) {
			units = append(units, string(runes[start:]))
			break
		}

		cut := -1
		// 优先：窗口内最靠后的句末标点，在标点之后切分
		for k := end - 1; k >= j; k-- {
			if sentenceEnders[runes[k]] {
				cut = k + 1
				break
			}
		}
		// 其次：窗口内最靠后的空白，在空白之前切分（空白归下一单元）
		if cut == -1 {
			for k := end - 1; k > j; k-- {
				if unicode.IsSpace(runes[k]) {
					cut = k
					break
				}
			}
		}
		// 兜底：单个超长 token，硬切
		if cut == -1 {
			cut = end
		}

		units = append(units, string(runes[start:cut]))
		i = cut
	}

	return units
}
