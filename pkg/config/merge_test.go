package config

import (
	"testing"
	"time"
)

type nestedConfig struct {
	Timeout time.Duration
	Retries int
}

type sampleConfig struct {
	Host    string
	Port    int
	Brokers []string
	Nested  nestedConfig
	Extra   *nestedConfig
}

// TestMergeConfigNilHandling 测试 nil 参数处理
func TestMergeConfigNilHandling(t *testing.T) {
	if _, err := MergeConfig[sampleConfig](nil, nil); err == nil {
		t.Error("MergeConfig(nil, nil) should return error")
	}

	src := &sampleConfig{Host: "localhost"}
	got, err := MergeConfig(nil, src)
	if err != nil {
		t.Fatalf("MergeConfig(nil, src) error = %v", err)
	}
	if got != src {
		t.Error("MergeConfig(nil, src) should return src")
	}

	dst := &sampleConfig{Host: "remote"}
	got, err = MergeConfig(dst, nil)
	if err != nil {
		t.Fatalf("MergeConfig(dst, nil) error = %v", err)
	}
	if got != dst {
		t.Error("MergeConfig(dst, nil) should return dst")
	}
}

// TestMergeConfigOverride 测试非零值覆盖
func TestMergeConfigOverride(t *testing.T) {
	dst := &sampleConfig{
		Host:    "localhost",
		Port:    5432,
		Brokers: []string{"a:9092"},
		Nested:  nestedConfig{Timeout: 3 * time.Second, Retries: 3},
	}
	src := &sampleConfig{
		Port:   6432,
		Nested: nestedConfig{Retries: 5},
	}

	got, err := MergeConfig(dst, src)
	if err != nil {
		t.Fatalf("MergeConfig() error = %v", err)
	}

	if got.Host != "localhost" {
		t.Errorf("Host = %v, want localhost (zero value in src must not override)", got.Host)
	}
	if got.Port != 6432 {
		t.Errorf("Port = %v, want 6432", got.Port)
	}
	if len(got.Brokers) != 1 || got.Brokers[0] != "a:9092" {
		t.Errorf("Brokers = %v, want [a:9092]", got.Brokers)
	}
	if got.Nested.Timeout != 3*time.Second {
		t.Errorf("Nested.Timeout = %v, want 3s", got.Nested.Timeout)
	}
	if got.Nested.Retries != 5 {
		t.Errorf("Nested.Retries = %v, want 5", got.Nested.Retries)
	}
}

// TestMergeConfigPointer 测试指针字段合并
func TestMergeConfigPointer(t *testing.T) {
	dst := &sampleConfig{}
	src := &sampleConfig{Extra: &nestedConfig{Retries: 2}}

	got, err := MergeConfig(dst, src)
	if err != nil {
		t.Fatalf("MergeConfig() error = %v", err)
	}

	if got.Extra == nil {
		t.Fatal("Extra = nil, want allocated")
	}
	if got.Extra.Retries != 2 {
		t.Errorf("Extra.Retries = %v, want 2", got.Extra.Retries)
	}
}

// TestMergeConfigSliceOverride 测试切片整体覆盖
func TestMergeConfigSliceOverride(t *testing.T) {
	dst := &sampleConfig{Brokers: []string{"a:9092"}}
	src := &sampleConfig{Brokers: []string{"b:9092", "c:9092"}}

	got, err := MergeConfig(dst, src)
	if err != nil {
		t.Fatalf("MergeConfig() error = %v", err)
	}

	if len(got.Brokers) != 2 {
		t.Fatalf("len(Brokers) = %v, want 2", len(got.Brokers))
	}
	if got.Brokers[0] != "b:9092" {
		t.Errorf("Brokers[0] = %v, want b:9092", got.Brokers[0])
	}
}
