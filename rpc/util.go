package rpc

import (
	"net"
	"strings"
)

// AdvertiseAddr 监听地址只有端口或是通配地址时, 用第一个内网ip补全, 用于服务注册
func AdvertiseAddr(listen string) string {
	listen = strings.TrimPrefix(strings.TrimPrefix(listen, "tcp://"), "tcp4://")
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return listen
	}
	if host != "" && host != "0.0.0.0" && host != "::" {
		return listen
	}
	ip := getOneInnerIP()
	if ip == "" {
		ip = "127.0.0.1"
	}
	return net.JoinHostPort(ip, port)
}

func getOneInnerIP() string {
	ips, err := getInnerIPs()
	if err != nil {
		return ""
	}
	if len(ips) > 0 {
		return ips[0]
	}
	return ""
}

func getInnerIPs() ([]string, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, err
	}

	var ips []string
	for _, addr := range addrs {
		if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
			if ipnet.IP.To4() != nil {
				ips = append(ips, ipnet.IP.String())
			}
		}
	}

	return ips, nil
}
