package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

var Config *AppConfig

type AppConfig struct {
	NodeName        string `json:"node_name" yaml:"node_name"`
	IsDebug         bool   `json:"is_debug" yaml:"is_debug"`
	LogConfig       `json:",inline" yaml:",inline"`
	SchedulerConfig `json:",inline" yaml:",inline"`
	RpcConfig       `json:",inline" yaml:",inline"`
	HttpApiConfig   `json:",inline" yaml:",inline"`
	RedisConfig     `json:",inline" yaml:",inline"`
}

type LogConfig struct {
	LogPath   string `json:"log_path" yaml:"log_path"`
	LogName   string `json:"log_name" yaml:"log_name"`
	LogLevel  string `json:"log_level" yaml:"log_level"`
	LogStdOut bool   `json:"log_std_out" yaml:"log_std_out"`
}

type SchedulerConfig struct {
	SchedulerShards int   `json:"scheduler_shards" yaml:"scheduler_shards"` //索引分片数
	ClockOffsetMs   int64 `json:"clock_offset_ms" yaml:"clock_offset_ms"`   //墙上时钟偏移 毫秒, 调时用
}

type RpcConfig struct {
	EtcdEndpoints   string `json:"etcd_endpoints" yaml:"etcd_endpoints"`       //etcd地址, 为空不注册服务
	EtcdLeaseTTL    int64  `json:"etcd_lease_ttl" yaml:"etcd_lease_ttl"`       //注册服务到etcd的租约时间
	RpcGroup        string `json:"rpc_group" yaml:"rpc_group"`                 //rpc群组名称，群组之间隔离
	RpcAddr         string `json:"rpc_addr" yaml:"rpc_addr"`                   //本节点服务注册到etcd的地址
	RpcListenAddr   string `json:"rpc_listen_addr" yaml:"rpc_listen_addr"`     //本节点服务监听的地址
	RpcProcessorNum int    `json:"rpc_processor_num" yaml:"rpc_processor_num"` //处理协程数量
	RpcMulticore    bool   `json:"rpc_multicore" yaml:"rpc_multicore"`
}

type HttpApiConfig struct {
	ApiVersion    string `json:"api_version" yaml:"api_version"`
	ApiListenAddr string `json:"api_listen_addr" yaml:"api_listen_addr"` //为空不启动
}

type RedisConfig struct {
	RedisMode       string `json:"redis_mode" yaml:"redis_mode"`
	RedisAddr       string `json:"redis_addr" yaml:"redis_addr"` // 多个地址用,隔开, 为空不启用
	RedisMasterName string `json:"redis_master_name" yaml:"redis_master_name"`
	RedisPassword   string `json:"redis_password" yaml:"redis_password"`
	RedisDB         int    `json:"redis_db" yaml:"redis_db"`
	LeaderLockTTL   int64  `json:"leader_lock_ttl" yaml:"leader_lock_ttl"` //秒
	StatusInterval  int64  `json:"status_interval" yaml:"status_interval"` //秒
}

const EnvPrefix = "TIMERD_"

func LoadConfig(configFile string, loadConfigFromEnv func(*AppConfig) error) error {
	conf := new(AppConfig)
	if len(configFile) != 0 {
		if err := loadConfigFromFile(configFile, conf); err != nil {
			return err
		}
	}
	if loadConfigFromEnv != nil {
		if err := loadConfigFromEnv(conf); err != nil {
			return err
		}
	}
	conf.Validate()
	Config = conf
	return nil
}

// 按扩展名选择格式, 默认json
func loadConfigFromFile(configFile string, conf *AppConfig) error {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return err
	}
	switch strings.ToLower(filepath.Ext(configFile)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, conf)
	default:
		return json.Unmarshal(data, conf)
	}
}

// LoadFromEnv 环境变量覆盖, 变量名是 TIMERD_ 加上大写的json字段名, 如 TIMERD_RPC_LISTEN_ADDR
func LoadFromEnv(conf *AppConfig) error {
	return loadEnv(reflect.ValueOf(conf).Elem(), os.LookupEnv)
}

func loadEnv(v reflect.Value, lookup func(string) (string, bool)) error {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		fv := v.Field(i)
		if f.Anonymous && fv.Kind() == reflect.Struct {
			if err := loadEnv(fv, lookup); err != nil {
				return err
			}
			continue
		}
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			continue
		}
		key := EnvPrefix + strings.ToUpper(name)
		raw, ok := lookup(key)
		if !ok {
			continue
		}
		if err := setField(fv, raw); err != nil {
			return fmt.Errorf("env %s: %w", key, err)
		}
	}
	return nil
}

func setField(fv reflect.Value, raw string) error {
	switch fv.Kind() {
	case reflect.String:
		fv.SetString(raw)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		fv.SetBool(b)
	case reflect.Int, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return err
		}
		fv.SetInt(n)
	default:
		return fmt.Errorf("unsupported kind %s", fv.Kind())
	}
	return nil
}

// Validate 填充默认值
func (conf *AppConfig) Validate() {
	if conf.NodeName == "" {
		conf.NodeName = "timerd"
	}
	if conf.LogName == "" {
		conf.LogName = "timerd"
	}
	if conf.LogLevel == "" {
		conf.LogLevel = "info"
	}
	if conf.RpcGroup == "" {
		conf.RpcGroup = "timerd"
	}
	if conf.RpcListenAddr == "" {
		conf.RpcListenAddr = ":7320"
	}
	if conf.RpcProcessorNum <= 0 {
		conf.RpcProcessorNum = 1
	}
	if conf.EtcdLeaseTTL <= 0 {
		conf.EtcdLeaseTTL = 5
	}
	if conf.LeaderLockTTL <= 0 {
		conf.LeaderLockTTL = 10
	}
	if conf.StatusInterval <= 0 {
		conf.StatusInterval = 5
	}
}

func (conf *AppConfig) JsonFormat() string {
	if conf == nil {
		return "{}"
	}
	data, err := json.MarshalIndent(conf, "", "  ")
	if err != nil {
		return ""
	}
	return string(data)
}
