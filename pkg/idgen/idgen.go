package idgen

import "strconv"

// Generator ID生成器接口
type Generator interface {
	// NextID 生成下一个唯一ID
	NextID() (int64, error)
}

// NextSessionID 生成会话ID字符串（36进制编码的唯一ID）
func NextSessionID(g Generator) (string, error) {
	id, err := g.NextID()
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(id, 36), nil
}
