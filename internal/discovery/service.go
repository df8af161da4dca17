package discovery

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"

	"github.com/grandcat/zeroconf"

	"rover_monitor/internal/config"
	"rover_monitor/pkg/logger"
)

const (
	// ServiceDomain é o domínio para descoberta na rede
	ServiceDomain = "local."

	// ServiceType define o tipo de serviço anunciado
	ServiceType = "_rovermap._tcp"

	serviceVersion = "1.0"
)

// Info descreve o serviço anunciado, usada também pela API
type Info struct {
	Instance string `json:"instance"`
	Type     string `json:"type"`
	Domain   string `json:"domain"`
	IP       string `json:"ip"`
	Port     int    `json:"port"`
	Topic    string `json:"topic"`
	Running  bool   `json:"running"`
}

// DiscoveryService anuncia o monitor na rede local via mDNS
type DiscoveryService struct {
	server       *zeroconf.Server
	mutex        sync.Mutex
	enabled      bool
	instanceName string
	port         int
	topic        string
	running      bool
	serverIP     string
}

// NewDiscoveryService cria um novo serviço de descoberta. Sem nome de
// instância configurado, usa "<hostname>-rover".
func NewDiscoveryService(cfg config.DiscoveryConfig, port int, topic string) *DiscoveryService {
	instanceName := cfg.Instance
	if instanceName == "" {
		hostname, _ := os.Hostname()
		instanceName = fmt.Sprintf("%s-rover", hostname)
	}

	return &DiscoveryService{
		enabled:      cfg.Enabled,
		port:         port,
		topic:        topic,
		instanceName: instanceName,
	}
}

// txtRecords monta os metadados do anúncio
func (s *DiscoveryService) txtRecords(ip string) []string {
	return []string{
		"version=" + serviceVersion,
		"ip=" + ip,
		"topic=" + s.topic,
		"name=Rover Map Monitor",
	}
}

// Start inicia o anúncio
func (s *DiscoveryService) Start() error {
	if !s.enabled {
		logger.Info("Serviço de descoberta desabilitado por configuração")
		return nil
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.running {
		return nil
	}

	ip, err := localIP()
	if err != nil {
		return fmt.Errorf("erro ao obter IP local: %w", err)
	}
	s.serverIP = ip

	server, err := zeroconf.Register(s.instanceName, ServiceType, ServiceDomain, s.port, s.txtRecords(ip), nil)
	if err != nil {
		return fmt.Errorf("erro ao registrar serviço de descoberta: %w", err)
	}

	s.server = server
	s.running = true

	logger.Infof("Serviço de descoberta iniciado em %s:%d (mDNS: %s.%s)",
		ip, s.port, s.instanceName, ServiceType)
	return nil
}

// Stop para o anúncio
func (s *DiscoveryService) Stop() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.running {
		return
	}

	if s.server != nil {
		s.server.Shutdown()
		s.server = nil
	}
	s.running = false

	logger.Info("Serviço de descoberta parado")
}

// Info retorna os dados do anúncio
func (s *DiscoveryService) Info() Info {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return Info{
		Instance: s.instanceName,
		Type:     ServiceType,
		Domain:   ServiceDomain,
		IP:       s.serverIP,
		Port:     s.port,
		Topic:    s.topic,
		Running:  s.running,
	}
}

// IsRunning verifica se o serviço está em execução
func (s *DiscoveryService) IsRunning() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.running
}

// Browse procura outros monitores anunciados até o contexto expirar
func Browse(ctx context.Context) ([]Info, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("erro ao criar resolver mDNS: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	var found []Info
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range entries {
			info := Info{Instance: e.Instance, Type: ServiceType, Domain: ServiceDomain, Port: e.Port, Running: true}
			if len(e.AddrIPv4) > 0 {
				info.IP = e.AddrIPv4[0].String()
			}
			for _, txt := range e.Text {
				if topic, ok := strings.CutPrefix(txt, "topic="); ok {
					info.Topic = topic
				}
			}
			found = append(found, info)
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		return nil, fmt.Errorf("erro ao procurar serviços: %w", err)
	}

	<-ctx.Done()
	<-done
	return found, nil
}

// localIP obtém o primeiro endereço IPv4 que não é loopback
func localIP() (string, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "", err
	}

	for _, addr := range addrs {
		if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
			if ipnet.IP.To4() != nil {
				return ipnet.IP.String(), nil
			}
		}
	}

	return "", fmt.Errorf("não foi possível determinar o endereço IP local")
}
