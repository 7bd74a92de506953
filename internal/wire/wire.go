package wire

import (
	"Wavecast/internal/api"
	"Wavecast/internal/api/config"
	"Wavecast/internal/api/handler"
	"Wavecast/internal/chat"
	"Wavecast/internal/job"
	"Wavecast/internal/pkg/cron"
	"Wavecast/internal/pkg/kafka"
	pkgmongo "Wavecast/internal/pkg/mongo"
	pkgredis "Wavecast/internal/pkg/redis"
	"Wavecast/internal/repository"
	"Wavecast/internal/service"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"
)

// ApplicationContainer 封装了应用运行所需的所有顶级组件
type ApplicationContainer struct {
	Router           *gin.Engine
	DB               *gorm.DB
	RoomHub          *chat.RoomHub
	DmHub            *chat.DmHub
	ActivityProducer *kafka.ActivityProducer
	CronMgr          *cron.Manager
}

func BuildApplication(db *gorm.DB, mongoDB *mongo.Database, cfg *config.Config) (*ApplicationContainer, error) {
	// 存储层
	convRepo := repository.NewConversationRepo(db)
	dmMsgRepo := pkgmongo.NewDmMessageRepo(mongoDB)
	roomMsgRepo := pkgmongo.NewRoomMessageRepo(mongoDB)

	// Pub/Sub 总线
	bus := pkgredis.NewBus(pkgredis.GetRdbClient())

	// 业务服务
	convService := service.NewConversationService(convRepo, dmMsgRepo, bus)
	msgService := service.NewDmMessageService(convRepo, dmMsgRepo, bus)
	presenceService := service.NewPresenceService()

	// 活跃度上报
	producer, err := kafka.NewActivityProducer(cfg)
	if err != nil {
		return nil, err
	}

	// 房间网关
	roomRegistry := chat.NewRegistry()
	membership := chat.NewMembershipStore()
	roomHub := chat.NewRoomHub(bus, membership, roomRegistry, roomMsgRepo, producer)

	// 私信网关
	dmRegistry := chat.NewRegistry()
	presence := chat.NewPresenceBroadcaster(dmRegistry, convService)
	dmHub := chat.NewDmHub(bus, dmRegistry, msgService, convService, presence)

	handlers := &api.HandlersGroup{
		ConversationHandler: handler.NewConversationHandler(convService),
		DmMessageHandler:    handler.NewDmMessageHandler(msgService),
		PresenceHandler:     handler.NewPresenceHandler(presenceService),
		RoomHandler:         handler.NewRoomHandler(),
		RoomWsHandler:       handler.NewRoomWsHandler(roomHub),
		DmWsHandler:         handler.NewDmWsHandler(dmHub),
	}

	router := api.SetupRouter(handlers)

	cronMgr := cron.NewCronManager(job.NewAudienceSnapshotJob())

	return &ApplicationContainer{
		Router:           router,
		DB:               db,
		RoomHub:          roomHub,
		DmHub:            dmHub,
		ActivityProducer: producer,
		CronMgr:          cronMgr,
	}, nil
}
