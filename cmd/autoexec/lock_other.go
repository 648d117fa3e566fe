//go:build !unix

package main

import (
	"runtime"

	"github.com/sirupsen/logrus"
)

func lockDataDir(dir string) (func() error, error) {
	logrus.Warnf("%s 不支持数据目录锁，跳过: %s", runtime.GOOS, dir)
	return func() error { return nil }, nil
}
