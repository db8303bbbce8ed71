package simhash

import (
	"strings"

	"github.com/go-dedup/simhash"
)

// RepeatThreshold 定义重复判定阈值：汉明距离<=10视为近重复
// whisper 在静音段上的重复幻觉通常是逐字或近逐字循环，距离远低于该值
const RepeatThreshold = 10

// TextFeatureSet 实现 simhash.FeatureSet 接口，用于转写文本的特征提取
type TextFeatureSet struct {
	text string
}

// GetFeatures 提取文本特征
// 使用字符级bigram特征，适合中英文混合短文本语义捕捉
func (t TextFeatureSet) GetFeatures() []simhash.Feature {
	text := strings.TrimSpace(t.text)
	if text == "" {
		return []simhash.Feature{}
	}

	features := make([]simhash.Feature, 0)
	runes := []rune(text)

	// 使用字符级bigram特征（滑动窗口大小=2），跳过标点
	for i := 0; i < len(runes)-1; i++ {
		r1, r2 := runes[i], runes[i+1]
		if isPunctuation(r1) || isPunctuation(r2) {
			continue
		}
		bigram := string([]rune{r1, r2})
		features = append(features, simhash.NewFeature([]byte(bigram)))
	}

	// 如果文本很短（<4个字符），添加单字符特征增强区分度
	if len(runes) < 4 {
		for _, r := range runes {
			if !isPunctuation(r) {
				features = append(features, simhash.NewFeature([]byte(string(r))))
			}
		}
	}

	return features
}

// isPunctuation 判断是否为标点符号
func isPunctuation(r rune) bool {
	return r == ' ' || r == ',' || r == '.' || r == '!' || r == '?' ||
		r == '：' || r == '、' || r == '。' || r == '，' || r == '；' ||
		r == '！' || r == '？' || r == '-' || r == '_' || r == '/' ||
		r == '（' || r == '）' || r == '(' || r == ')' || r == '\t' || r == '\n'
}

// CalculateSimHash 计算文本的 SimHash 指纹
// 参数:
//   - text: 转写文本
//
// 返回:
//   - uint64: 64位SimHash指纹值
func CalculateSimHash(text string) uint64 {
	sh := simhash.NewSimhash()
	featureSet := TextFeatureSet{text: text}
	return sh.GetSimhash(featureSet)
}

// HammingDistance 计算两个 SimHash 指纹的汉明距离
// 汉明距离表示两个64位数字中不同位的数量
func HammingDistance(hash1, hash2 uint64) int {
	// XOR 操作：相同位为0，不同位为1
	x := hash1 ^ hash2
	count := 0

	// 计算1的个数（Brian Kernighan算法）
	for x != 0 {
		count++
		x &= x - 1 // 清除最右边的1
	}

	return count
}

// IsRepeat 判断 text 是否为 prev 的近重复
// 返回:
//   - bool: 是否近重复（汉明距离 <= RepeatThreshold）
func IsRepeat(prev, text string) bool {
	hash1 := CalculateSimHash(prev)
	hash2 := CalculateSimHash(text)
	return HammingDistance(hash1, hash2) <= RepeatThreshold
}

// FlagRepeats 标记连续近重复文本（whisper 重复幻觉的典型形态）
// 返回与输入等长的布尔列表，flags[i] 为 true 表示第 i 条与第 i-1 条近似重复
// 空文本不参与比较
func FlagRepeats(texts []string) []bool {
	flags := make([]bool, len(texts))
	if len(texts) < 2 {
		return flags
	}

	hashes := make([]uint64, len(texts))
	nonEmpty := make([]bool, len(texts))
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			continue
		}
		nonEmpty[i] = true
		hashes[i] = CalculateSimHash(t)
	}

	for i := 1; i < len(texts); i++ {
		if !nonEmpty[i] || !nonEmpty[i-1] {
			continue
		}
		if HammingDistance(hashes[i-1], hashes[i]) <= RepeatThreshold {
			flags[i] = true
		}
	}
	return flags
}
