package config

import (
	"fmt"
	"reflect"
)

// MergeConfig 合并配置
// - dst 和 src 都为 nil 时返回错误
// - dst 为 nil 返回 src，src 为 nil 返回 dst
// - 否则 src 中的非零值覆盖 dst 的对应字段，返回合并后的 dst
//
// 各组件用它把用户传入的部分配置叠加到 DefaultConfig() 之上。
func MergeConfig[T any](dst, src *T) (*T, error) {
	if dst == nil && src == nil {
		return nil, fmt.Errorf("both dst and src cannot be nil")
	}

	if dst == nil {
		return src, nil
	}

	if src == nil {
		return dst, nil
	}

	dstValue := reflect.ValueOf(dst).Elem()
	srcValue := reflect.ValueOf(src).Elem()

	if err := mergeValues(dstValue, srcValue); err != nil {
		return nil, err
	}

	return dst, nil
}

// mergeValues 递归合并两个 reflect.Value
func mergeValues(dst, src reflect.Value) error {
	if !src.IsValid() || src.IsZero() {
		return nil
	}

	switch dst.Kind() {
	case reflect.Struct:
		for i := 0; i < dst.NumField(); i++ {
			if !dst.Field(i).CanSet() {
				continue
			}
			if err := mergeValues(dst.Field(i), src.Field(i)); err != nil {
				return fmt.Errorf("field %s: %w", dst.Type().Field(i).Name, err)
			}
		}
		return nil

	case reflect.Ptr:
		if src.IsNil() {
			return nil
		}
		if dst.IsNil() {
			dst.Set(reflect.New(dst.Type().Elem()))
		}
		return mergeValues(dst.Elem(), src.Elem())

	default:
		// 基本类型、切片、map：src 非零即覆盖
		if dst.CanSet() {
			dst.Set(src)
		}
		return nil
	}
}
