package etcd

import (
	"net"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/server/v3/embed"
	"go.etcd.io/etcd/server/v3/etcdserver/api/v3client"
	"go.uber.org/zap"

	"github.com/lk2023060901/zeus-marshal/pkg/log"
)

const readyTimeout = time.Minute

// etcdServer 是嵌入式 etcd 服务的单例实例。
var (
	initOnce   sync.Once
	closeOnce  sync.Once
	etcdServer *embed.Etcd
)

// GetEmbedEtcdClient 返回嵌入式 etcd 服务对应的 v3 客户端。
func GetEmbedEtcdClient() (*clientv3.Client, error) {
	if etcdServer == nil {
		return nil, errors.New("embedded etcd server is not running")
	}
	return v3client.New(etcdServer.Server), nil
}

// InitEtcdServer 初始化嵌入式 etcd 单例服务，并等待其可以对外服务。
func InitEtcdServer(cfg *Config) error {
	var initError error
	initOnce.Do(func() {
		var ecfg *embed.Config
		if len(cfg.ConfigPath) > 0 {
			cfgFromFile, err := embed.ConfigFromFile(cfg.ConfigPath)
			if err != nil {
				initError = err
				return
			}
			ecfg = cfgFromFile
		} else {
			ecfg = embed.NewConfig()
			if err := setListenURLs(ecfg, cfg.ClientURL, cfg.PeerURL); err != nil {
				initError = err
				return
			}
		}
		if cfg.DataDir != "" {
			ecfg.Dir = cfg.DataDir
		}
		if cfg.LogPath != "" {
			ecfg.LogOutputs = []string{cfg.LogPath}
		}
		if cfg.LogLevel != "" {
			ecfg.LogLevel = cfg.LogLevel
		}

		e, err := embed.StartEtcd(ecfg)
		if err != nil {
			log.Error("failed to init embedded Etcd server", zap.Error(err))
			initError = err
			return
		}
		select {
		case <-e.Server.ReadyNotify():
		case <-time.After(readyTimeout):
			e.Server.Stop()
			initError = errors.Newf("embedded etcd not ready after %s", readyTimeout)
			return
		}
		etcdServer = e
		log.Info("finish init Etcd config",
			zap.String("path", cfg.ConfigPath),
			zap.String("data", ecfg.Dir),
			zap.String("client", ecfg.ListenClientUrls[0].String()))
	})
	return initError
}

// setListenURLs 设置单节点嵌入式 etcd 的监听地址。
func setListenURLs(ecfg *embed.Config, clientURL, peerURL string) error {
	var err error
	if clientURL == "" {
		if clientURL, err = localURL(); err != nil {
			return err
		}
	}
	if peerURL == "" {
		if peerURL, err = localURL(); err != nil {
			return err
		}
	}
	cu, err := url.Parse(clientURL)
	if err != nil {
		return errors.Wrapf(err, "parse client url %q", clientURL)
	}
	pu, err := url.Parse(peerURL)
	if err != nil {
		return errors.Wrapf(err, "parse peer url %q", peerURL)
	}
	ecfg.ListenClientUrls = []url.URL{*cu}
	ecfg.AdvertiseClientUrls = []url.URL{*cu}
	ecfg.ListenPeerUrls = []url.URL{*pu}
	ecfg.AdvertisePeerUrls = []url.URL{*pu}
	ecfg.InitialCluster = ecfg.InitialClusterFromName(ecfg.Name)
	return nil
}

// localURL 选择一个空闲的本地端口。
func localURL() (string, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", errors.Wrap(err, "pick free port")
	}
	defer l.Close()
	return "http://127.0.0.1:" + strconv.Itoa(l.Addr().(*net.TCPAddr).Port), nil
}

// HasServer 判断嵌入式 etcd 是否已启动。
func HasServer() bool {
	return etcdServer != nil
}

// StopEtcdServer stops embedded etcd server singleton.
func StopEtcdServer() {
	if etcdServer != nil {
		closeOnce.Do(func() {
			etcdServer.Close()
			etcdServer = nil
		})
	}
}
