package svc

import "errors"

// ErrStorageInitFailed 错误：存储初始化失败
var ErrStorageInitFailed = errors.New("storage initialization failed")

// ErrDecoderInitFailed 错误：串口文本编码无法识别
var ErrDecoderInitFailed = errors.New("decoder initialization failed")
