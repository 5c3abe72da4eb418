// Package mq — транспорт RabbitMQ для движка.
//
// Используется двумя компонентами:
//   - backend "amqp" публикует units в очередь удалённого пула обработчиков
//   - notify в режиме "amqp" публикует уведомления для почтового сервиса
//
// Публикация ждёт publisher confirm: unit считается принятым в очередь
// только после подтверждения брокера.
package mq
