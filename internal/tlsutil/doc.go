// Copyright (c) AgentDesk Authors.
// Licensed under the MIT License.

// Package tlsutil 提供集中式 TLS 配置，
// 为交互台 HTTP 客户端和 Redis 存储连接提供安全加固的 TLS 设置（TLS 1.2+，仅 AEAD 密码套件）。
package tlsutil
