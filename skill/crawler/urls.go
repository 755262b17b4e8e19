package crawler

import (
	"net/url"
	"regexp"
	"strings"
)

var urlPattern = regexp.MustCompile(`https?://[^\s<>"'\x60]+`)

// 末尾常见的标点，不属于 URL 本身
const trailingPunct = ".,;:!?)]}>'\"，。；：！？）】」"

// ExtractURLs 识别自由文本中的 http(s) URL，去掉结尾标点，按首次出现顺序去重，并丢弃非法 URL。
func ExtractURLs(text string) []string {
	matches := urlPattern.FindAllString(text, -1)
	return Dedupe(cleanAll(matches))
}

func cleanAll(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, m := range raw {
		m = trimTrailing(m)
		if ValidateURL(m) == nil {
			out = append(out, m)
		}
	}
	return out
}

// trimTrailing 去掉结尾标点；成对出现的右括号保留（如维基百科链接）。
func trimTrailing(u string) string {
	for u != "" {
		r := []rune(u)
		last := r[len(r)-1]
		if !strings.ContainsRune(trailingPunct, last) {
			break
		}
		if last == ')' && strings.Count(u, "(") >= strings.Count(u, ")") {
			break
		}
		u = string(r[:len(r)-1])
	}
	return u
}

// ValidateURL 只接受带主机名的 http/https 绝对 URL。
func ValidateURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return errInvalidURL(raw, "empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return errInvalidURL(raw, err.Error())
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errInvalidURL(raw, "unsupported scheme "+u.Scheme)
	}
	if u.Hostname() == "" {
		return errInvalidURL(raw, "missing host")
	}
	return nil
}

// Dedupe 按首次出现顺序去重
func Dedupe(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
