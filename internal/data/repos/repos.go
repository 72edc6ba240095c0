package repos

import (
	"github.com/yungbote/quizbridge-backend/internal/data/repos/quiz"
	"github.com/yungbote/quizbridge-backend/internal/platform/logger"
	"gorm.io/gorm"
)

type QuizRepo = quiz.QuizRepo
type QuestionRepo = quiz.QuestionRepo

type Repos struct {
	Quizzes   QuizRepo
	Questions QuestionRepo
}

func New(db *gorm.DB, log *logger.Logger) Repos {
	return Repos{
		Quizzes:   quiz.NewQuizRepo(db, log),
		Questions: quiz.NewQuestionRepo(db, log),
	}
}
